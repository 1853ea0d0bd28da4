// Package filter provides the small scalar filters used by the sensor layer.
package filter

// Exponential is a first-order low-pass filter. Each sample moves the value
// 1/Factor of the way towards the input. The first sample seeds the value.
type Exponential struct {
	factor float64
	value  float64
	seeded bool
}

// NewExponential returns a filter with the given smoothing factor.
// Factors below 1 are treated as 1 (no smoothing).
func NewExponential(factor float64) *Exponential {
	if factor < 1 {
		factor = 1
	}
	return &Exponential{factor: factor}
}

// Add feeds one sample and returns the smoothed value.
func (e *Exponential) Add(x float64) float64 {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return e.value
	}
	e.value += (x - e.value) / e.factor
	return e.value
}

// Value returns the current smoothed value.
func (e *Exponential) Value() float64 {
	return e.value
}

// Reset forgets all history.
func (e *Exponential) Reset() {
	e.value = 0
	e.seeded = false
}

// Average is a windowed mean over the most recent samples.
// The window storage is allocated once.
type Average struct {
	data  []float64
	pos   int
	count int
}

// NewAverage returns a window of n samples. n below 1 is treated as 1.
func NewAverage(n int) *Average {
	if n < 1 {
		n = 1
	}
	return &Average{data: make([]float64, n)}
}

// Size returns the window length.
func (a *Average) Size() int {
	return len(a.data)
}

// Add pushes a sample, evicting the oldest when the window is full.
func (a *Average) Add(x float64) {
	a.data[a.pos] = x
	a.pos++
	if a.pos >= len(a.data) {
		a.pos = 0
	}
	if a.count < len(a.data) {
		a.count++
	}
}

// Mean returns the mean of the samples currently in the window, or 0 when empty.
func (a *Average) Mean() float64 {
	if a.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < a.count; i++ {
		sum += a.data[i]
	}
	return sum / float64(a.count)
}

// Reset empties the window.
func (a *Average) Reset() {
	a.pos, a.count = 0, 0
}

// Debouncer publishes a boolean only when it changes.
type Debouncer struct {
	state bool
}

// Update records the latest level and reports whether it differs from the
// previously published one.
func (d *Debouncer) Update(level bool) (changed bool) {
	if level == d.state {
		return false
	}
	d.state = level
	return true
}

// State returns the last published level.
func (d *Debouncer) State() bool {
	return d.state
}
