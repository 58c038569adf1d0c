// Package regime classifies the current market as RISK-ON, RISK-OFF, or
// MIXED from five snapshot-derived signals. Pure functions; callers supply
// the inputs and thresholds.
package regime

import (
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	RiskOn  Direction = "risk_on"
	RiskOff Direction = "risk_off"
	Neutral Direction = "neutral"
)

const (
	LabelRiskOn  = "RISK-ON"
	LabelRiskOff = "RISK-OFF"
	LabelMixed   = "MIXED"
)

// InsufficientDataReason is returned when every signal is neutral.
const InsufficientDataReason = "Insufficient data for regime classification"

// Signal is one evaluated regime input.
type Signal struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Detail    string    `json:"detail"`
}

// Result is a full classification.
type Result struct {
	Label     string    `json:"label"`
	Reason    string    `json:"reason"`
	Signals   []Signal  `json:"signals"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds tune the five signal evaluators.
type Thresholds struct {
	SMAPeriod        int     // trend signal lookback, in trading days
	VolSpikePct      float64 // VIXY daily change above this is a spike
	VolDropPct       float64 // VIXY daily change below this is a collapse
	HYSpreadRiskOff  float64 // HY spread level above this is stressed
	HYSpreadRiskOn   float64 // HY spread level below this is tight
	HYWideningBps    float64 // week-over-week widening above this is stress
	DollarSpikePct   float64 // UUP daily change above this is a dollar spike
	GoldSafeHavenPct float64 // gold daily change above this may be flight to safety
}

// Inputs carries the snapshot-derived values the evaluators read. Nil means
// the value is unavailable and the corresponding signal stays neutral.
type Inputs struct {
	SPYPrice        *float64
	SPYSMA          *float64 // nil when history is shorter than SMAPeriod days
	SPYChangePct    *float64
	VIXYChangePct   *float64
	HYSpread        *float64
	HYSpreadWeekAgo *float64
	UUPChangePct    *float64
	GoldChangePct   *float64
}

// Classify evaluates all five signals and aggregates them:
// at least 2 risk-off signals is RISK-OFF; at least 2 risk-on with zero
// risk-off is RISK-ON; everything else (conflicts or sparse data) is MIXED.
func Classify(in Inputs, th Thresholds) Result {
	signals := []Signal{
		evalTrend(in, th),
		evalVolatility(in, th),
		evalCreditSpreads(in, th),
		evalDollar(in, th),
		evalGoldVsEquities(in, th),
	}

	return Result{
		Label:     label(signals),
		Reason:    reason(signals),
		Signals:   signals,
		Timestamp: time.Now().UTC(),
	}
}

// evalTrend compares the S&P 500 proxy price to its N-day moving average.
func evalTrend(in Inputs, th Thresholds) Signal {
	if in.SPYPrice == nil {
		return Signal{Name: "spx_trend", Direction: Neutral, Detail: "S&P 500 data unavailable"}
	}
	if in.SPYSMA == nil {
		return Signal{
			Name:      "spx_trend",
			Direction: Neutral,
			Detail:    fmt.Sprintf("insufficient history for %d-day MA", th.SMAPeriod),
		}
	}

	price, sma := *in.SPYPrice, *in.SPYSMA
	if price > sma {
		return Signal{
			Name:      "spx_trend",
			Direction: RiskOn,
			Detail:    fmt.Sprintf("S&P above %d-day MA (%.0f vs %.0f)", th.SMAPeriod, price, sma),
		}
	}
	return Signal{
		Name:      "spx_trend",
		Direction: RiskOff,
		Detail:    fmt.Sprintf("S&P below %d-day MA (%.0f vs %.0f)", th.SMAPeriod, price, sma),
	}
}

// evalVolatility reads the daily move of the VIX futures ETF: a spike is
// risk-off, a collapse is risk-on.
func evalVolatility(in Inputs, th Thresholds) Signal {
	if in.VIXYChangePct == nil {
		return Signal{Name: "vix", Direction: Neutral, Detail: "VIXY data unavailable"}
	}

	change := *in.VIXYChangePct
	if change > th.VolSpikePct {
		return Signal{Name: "vix", Direction: RiskOff, Detail: fmt.Sprintf("VIXY spiking (%+.1f%%)", change)}
	}
	if change < th.VolDropPct {
		return Signal{Name: "vix", Direction: RiskOn, Detail: fmt.Sprintf("VIXY falling (%+.1f%%)", change)}
	}
	return Signal{Name: "vix", Direction: Neutral, Detail: fmt.Sprintf("VIXY stable (%+.1f%%)", change)}
}

// evalCreditSpreads checks the HY spread level first, then week-over-week
// widening, then the tight-level risk-on case.
func evalCreditSpreads(in Inputs, th Thresholds) Signal {
	if in.HYSpread == nil {
		return Signal{Name: "hy_spread", Direction: Neutral, Detail: "HY spread data unavailable"}
	}

	spread := *in.HYSpread
	if spread > th.HYSpreadRiskOff {
		return Signal{
			Name:      "hy_spread",
			Direction: RiskOff,
			Detail:    fmt.Sprintf("HY spread elevated (%.2f%%)", spread),
		}
	}

	if in.HYSpreadWeekAgo != nil {
		changeBps := (spread - *in.HYSpreadWeekAgo) * 100
		if changeBps > th.HYWideningBps {
			return Signal{
				Name:      "hy_spread",
				Direction: RiskOff,
				Detail:    fmt.Sprintf("HY spreads widening (+%.0f bps WoW)", changeBps),
			}
		}
	}

	if spread < th.HYSpreadRiskOn {
		return Signal{
			Name:      "hy_spread",
			Direction: RiskOn,
			Detail:    fmt.Sprintf("HY spreads tight (%.2f%%)", spread),
		}
	}
	return Signal{Name: "hy_spread", Direction: Neutral, Detail: fmt.Sprintf("HY spread neutral (%.2f%%)", spread)}
}

// evalDollar flags a sharp rise in the dollar index fund. Asymmetric: only
// ever risk-off.
func evalDollar(in Inputs, th Thresholds) Signal {
	if in.UUPChangePct == nil {
		return Signal{Name: "dxy", Direction: Neutral, Detail: "UUP data unavailable"}
	}

	change := *in.UUPChangePct
	if change > th.DollarSpikePct {
		return Signal{Name: "dxy", Direction: RiskOff, Detail: fmt.Sprintf("dollar spiking (%+.1f%%)", change)}
	}
	return Signal{Name: "dxy", Direction: Neutral, Detail: fmt.Sprintf("UUP stable (%+.1f%%)", change)}
}

// evalGoldVsEquities flags gold outperforming equities. Requires gold to be
// up more than the safe-haven threshold AND beating the S&P, so flat days
// stay neutral. Asymmetric: only ever risk-off.
func evalGoldVsEquities(in Inputs, th Thresholds) Signal {
	if in.GoldChangePct == nil || in.SPYChangePct == nil {
		return Signal{Name: "gold_vs_equities", Direction: Neutral, Detail: "gold/equity data unavailable"}
	}

	gold, spx := *in.GoldChangePct, *in.SPYChangePct
	if gold > th.GoldSafeHavenPct && gold > spx {
		return Signal{
			Name:      "gold_vs_equities",
			Direction: RiskOff,
			Detail:    fmt.Sprintf("gold outperforming equities (%+.1f%% vs %+.1f%%)", gold, spx),
		}
	}
	return Signal{Name: "gold_vs_equities", Direction: Neutral, Detail: "gold not outperforming"}
}

func label(signals []Signal) string {
	var riskOn, riskOff int
	for _, s := range signals {
		switch s.Direction {
		case RiskOn:
			riskOn++
		case RiskOff:
			riskOff++
		}
	}

	if riskOff >= 2 {
		return LabelRiskOff
	}
	if riskOn >= 2 && riskOff == 0 {
		return LabelRiskOn
	}
	return LabelMixed
}

func reason(signals []Signal) string {
	var parts []string
	for _, s := range signals {
		if s.Direction != Neutral {
			parts = append(parts, s.Detail)
		}
	}
	if len(parts) == 0 {
		return InsufficientDataReason
	}
	return strings.Join(parts, "; ")
}
