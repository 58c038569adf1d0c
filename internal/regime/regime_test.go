package regime

import (
	"strings"
	"testing"
)

func f(v float64) *float64 { return &v }

func testThresholds() Thresholds {
	return Thresholds{
		SMAPeriod:        20,
		VolSpikePct:      5.0,
		VolDropPct:       -5.0,
		HYSpreadRiskOff:  5.0,
		HYSpreadRiskOn:   3.5,
		HYWideningBps:    10.0,
		DollarSpikePct:   0.5,
		GoldSafeHavenPct: 1.5,
	}
}

func TestEvalTrend(t *testing.T) {
	th := testThresholds()

	tests := []struct {
		name   string
		in     Inputs
		want   Direction
		detail string
	}{
		{"above MA", Inputs{SPYPrice: f(5200), SPYSMA: f(5000)}, RiskOn, "above"},
		{"below MA", Inputs{SPYPrice: f(4800), SPYSMA: f(5000)}, RiskOff, "below"},
		{"insufficient history", Inputs{SPYPrice: f(5100)}, Neutral, "insufficient history"},
		{"no data", Inputs{}, Neutral, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := evalTrend(tt.in, th)
			if sig.Direction != tt.want {
				t.Errorf("direction = %q, want %q", sig.Direction, tt.want)
			}
			if !strings.Contains(sig.Detail, tt.detail) {
				t.Errorf("detail %q does not contain %q", sig.Detail, tt.detail)
			}
		})
	}
}

func TestEvalVolatility(t *testing.T) {
	th := testThresholds()

	tests := []struct {
		name string
		in   Inputs
		want Direction
	}{
		{"spike is risk off", Inputs{VIXYChangePct: f(8.0)}, RiskOff},
		{"collapse is risk on", Inputs{VIXYChangePct: f(-6.0)}, RiskOn},
		{"stable is neutral", Inputs{VIXYChangePct: f(1.0)}, Neutral},
		{"no data", Inputs{}, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sig := evalVolatility(tt.in, th); sig.Direction != tt.want {
				t.Errorf("direction = %q, want %q", sig.Direction, tt.want)
			}
		})
	}
}

func TestEvalCreditSpreads(t *testing.T) {
	th := testThresholds()

	tests := []struct {
		name   string
		in     Inputs
		want   Direction
		detail string
	}{
		{"elevated level", Inputs{HYSpread: f(5.5)}, RiskOff, "elevated"},
		{"widening week over week", Inputs{HYSpread: f(3.65), HYSpreadWeekAgo: f(3.50)}, RiskOff, "widening"},
		{"tight and tightening", Inputs{HYSpread: f(3.25), HYSpreadWeekAgo: f(3.30)}, RiskOn, "tight"},
		{"tight with no history", Inputs{HYSpread: f(3.2)}, RiskOn, "tight"},
		{"neutral zone stable", Inputs{HYSpread: f(4.05), HYSpreadWeekAgo: f(4.0)}, Neutral, "neutral"},
		{"no data", Inputs{}, Neutral, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := evalCreditSpreads(tt.in, th)
			if sig.Direction != tt.want {
				t.Errorf("direction = %q, want %q", sig.Direction, tt.want)
			}
			if !strings.Contains(sig.Detail, tt.detail) {
				t.Errorf("detail %q does not contain %q", sig.Detail, tt.detail)
			}
		})
	}
}

func TestEvalDollar(t *testing.T) {
	th := testThresholds()

	if sig := evalDollar(Inputs{UUPChangePct: f(1.5)}, th); sig.Direction != RiskOff {
		t.Errorf("spike: direction = %q, want risk_off", sig.Direction)
	}
	if sig := evalDollar(Inputs{UUPChangePct: f(0.2)}, th); sig.Direction != Neutral {
		t.Errorf("stable: direction = %q, want neutral", sig.Direction)
	}
	// Asymmetric: a falling dollar never flags risk-on.
	if sig := evalDollar(Inputs{UUPChangePct: f(-2.0)}, th); sig.Direction != Neutral {
		t.Errorf("drop: direction = %q, want neutral", sig.Direction)
	}
	if sig := evalDollar(Inputs{}, th); sig.Direction != Neutral {
		t.Errorf("no data: direction = %q, want neutral", sig.Direction)
	}
}

func TestEvalGoldVsEquities(t *testing.T) {
	th := testThresholds()

	tests := []struct {
		name string
		in   Inputs
		want Direction
	}{
		{"gold outperforming", Inputs{GoldChangePct: f(2.0), SPYChangePct: f(0.5)}, RiskOff},
		{"gold up but below threshold", Inputs{GoldChangePct: f(0.5), SPYChangePct: f(0.1)}, Neutral},
		{"equities outperforming", Inputs{GoldChangePct: f(2.0), SPYChangePct: f(3.0)}, Neutral},
		{"no data", Inputs{}, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sig := evalGoldVsEquities(tt.in, th); sig.Direction != tt.want {
				t.Errorf("direction = %q, want %q", sig.Direction, tt.want)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name       string
		directions []Direction
		want       string
	}{
		{"two risk on", []Direction{RiskOn, RiskOn, Neutral}, LabelRiskOn},
		{"risk on blocked by one risk off", []Direction{RiskOn, RiskOn, RiskOff}, LabelMixed},
		{"two risk off", []Direction{RiskOff, RiskOff, Neutral}, LabelRiskOff},
		{"risk off wins over risk on", []Direction{RiskOn, RiskOn, RiskOff, RiskOff}, LabelRiskOff},
		{"all neutral", []Direction{Neutral, Neutral}, LabelMixed},
		{"single risk on", []Direction{RiskOn, Neutral}, LabelMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := make([]Signal, len(tt.directions))
			for i, d := range tt.directions {
				signals[i] = Signal{Direction: d}
			}
			if got := label(signals); got != tt.want {
				t.Errorf("label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	signals := []Signal{
		{Direction: RiskOn, Detail: "alpha"},
		{Direction: Neutral, Detail: "beta"},
		{Direction: RiskOff, Detail: "gamma"},
	}
	if got := reason(signals); got != "alpha; gamma" {
		t.Errorf("reason = %q, want %q", got, "alpha; gamma")
	}

	allNeutral := []Signal{{Direction: Neutral, Detail: "x"}}
	if got := reason(allNeutral); got != InsufficientDataReason {
		t.Errorf("reason = %q, want insufficient-data line", got)
	}
}

func TestClassify_ClearRiskOn(t *testing.T) {
	in := Inputs{
		SPYPrice:      f(5200),
		SPYSMA:        f(5000),
		SPYChangePct:  f(0.5),
		VIXYChangePct: f(-6.0),
		HYSpread:      f(3.2),
		UUPChangePct:  f(0.2),
		GoldChangePct: f(0.3),
	}

	result := Classify(in, testThresholds())
	if result.Label != LabelRiskOn {
		t.Errorf("label = %q, want RISK-ON", result.Label)
	}
	if !strings.Contains(result.Reason, "S&P above") {
		t.Errorf("reason %q missing trend detail", result.Reason)
	}
	if len(result.Signals) != 5 {
		t.Errorf("expected 5 signals, got %d", len(result.Signals))
	}
	if result.Timestamp.IsZero() {
		t.Error("expected timestamp set")
	}
}

func TestClassify_ClearRiskOff(t *testing.T) {
	in := Inputs{
		SPYPrice:        f(4800),
		SPYSMA:          f(5000),
		SPYChangePct:    f(-2.0),
		VIXYChangePct:   f(9.0),
		HYSpread:        f(3.65),
		HYSpreadWeekAgo: f(3.50),
		UUPChangePct:    f(1.5),
		GoldChangePct:   f(2.0),
	}

	result := Classify(in, testThresholds())
	if result.Label != LabelRiskOff {
		t.Errorf("label = %q, want RISK-OFF", result.Label)
	}
	if !strings.Contains(result.Reason, "below") {
		t.Errorf("reason %q missing trend detail", result.Reason)
	}
}

func TestClassify_ConflictIsMixed(t *testing.T) {
	// Trend bullish but volatility spiking.
	in := Inputs{
		SPYPrice:      f(5200),
		SPYSMA:        f(5000),
		SPYChangePct:  f(0.5),
		VIXYChangePct: f(9.0),
		HYSpread:      f(4.0),
		UUPChangePct:  f(0.2),
		GoldChangePct: f(0.3),
	}

	if result := Classify(in, testThresholds()); result.Label != LabelMixed {
		t.Errorf("label = %q, want MIXED", result.Label)
	}
}

func TestClassify_NoDataIsMixed(t *testing.T) {
	result := Classify(Inputs{}, testThresholds())
	if result.Label != LabelMixed {
		t.Errorf("label = %q, want MIXED", result.Label)
	}
	if result.Reason != InsufficientDataReason {
		t.Errorf("reason = %q, want insufficient-data line", result.Reason)
	}
}

func TestClassify_PartialDataIsMixed(t *testing.T) {
	result := Classify(Inputs{VIXYChangePct: f(1.0)}, testThresholds())
	if result.Label != LabelMixed {
		t.Errorf("label = %q, want MIXED", result.Label)
	}
}
