package features

import (
	"math"
	"testing"
)

func TestMeanAndStdDev(t *testing.T) {
	v := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := Mean(v)
	if m != 5 {
		t.Fatalf("mean = %v", m)
	}
	if sd := StdDev(v, m); sd != 2 {
		t.Fatalf("stddev = %v", sd)
	}
	if Mean(nil) != 0 || StdDev([]float64{1}, 1) != 0 {
		t.Fatalf("expected zero for degenerate input")
	}
}

func TestMeanAbsDiff(t *testing.T) {
	if got := MeanAbsDiff([]float64{1, 3, 2, 4}); math.Abs(got-5.0/3.0) > 1e-12 {
		t.Fatalf("mean abs diff = %v", got)
	}
	if MeanAbsDiff([]float64{1}) != 0 {
		t.Fatalf("expected 0")
	}
}

func TestPercentChange(t *testing.T) {
	if got := PercentChange(100, 105); math.Abs(got-5) > 1e-12 {
		t.Fatalf("pct = %v", got)
	}
	if PercentChange(0, 5) != 0 {
		t.Fatalf("zero base must not divide")
	}
}

func TestLogReturnsAndVolatility(t *testing.T) {
	r := ComputeLogReturns([]float64{100, 110, 121})
	if len(r) != 2 || math.Abs(r[0]-r[1]) > 1e-12 {
		t.Fatalf("unexpected returns %v", r)
	}
	if RealizedVolatility(r, 2) > 1e-9 {
		t.Fatalf("constant returns should have ~0 vol")
	}
	if RealizedVolatility(r, 5) != 0 {
		t.Fatalf("insufficient window must be 0")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(12, 0, 10) != 10 || Clamp(-1, 0, 10) != 0 || Clamp(4, 0, 10) != 4 {
		t.Fatalf("clamp broken")
	}
}
