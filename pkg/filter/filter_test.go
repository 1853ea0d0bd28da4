package filter

import (
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExponential_SeedsWithFirstSample(t *testing.T) {
	e := NewExponential(2)
	if got := e.Add(100); !near(got, 100) {
		t.Errorf("first Add = %v, want 100", got)
	}
	if got := e.Add(50); !near(got, 75) {
		t.Errorf("second Add = %v, want 75", got)
	}
	if got := e.Add(75); !near(got, 75) {
		t.Errorf("third Add = %v, want 75", got)
	}
}

func TestExponential_FactorOneTracksInput(t *testing.T) {
	e := NewExponential(0)
	e.Add(10)
	if got := e.Add(-4); !near(got, -4) {
		t.Errorf("Add = %v, want -4", got)
	}
}

func TestExponential_Reset(t *testing.T) {
	e := NewExponential(4)
	e.Add(10)
	e.Add(20)
	e.Reset()
	if got := e.Add(3); !near(got, 3) {
		t.Errorf("Add after Reset = %v, want 3", got)
	}
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		samples []float64
		want    float64
	}{
		{"empty", 3, nil, 0},
		{"partial window", 4, []float64{2, 4}, 3},
		{"full window", 3, []float64{1, 2, 3}, 2},
		{"evicts oldest", 3, []float64{100, 1, 2, 3}, 2},
		{"wraps twice", 2, []float64{9, 9, 9, 1, 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAverage(tt.size)
			for _, s := range tt.samples {
				a.Add(s)
			}
			if got := a.Mean(); !near(got, tt.want) {
				t.Errorf("Mean() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAverage_Reset(t *testing.T) {
	a := NewAverage(2)
	a.Add(8)
	a.Reset()
	a.Add(2)
	if got := a.Mean(); !near(got, 2) {
		t.Errorf("Mean() = %v, want 2", got)
	}
}

func TestDebouncer_ReportsTransitionsOnly(t *testing.T) {
	var d Debouncer
	levels := []bool{false, true, true, false, false, true}
	wantChanged := []bool{false, true, false, true, false, true}

	for i, l := range levels {
		if got := d.Update(l); got != wantChanged[i] {
			t.Errorf("step %d: Update(%v) = %v, want %v", i, l, got, wantChanged[i])
		}
		if d.State() != l {
			t.Errorf("step %d: State() = %v, want %v", i, d.State(), l)
		}
	}
}
