package world

import "math"

// MovingAverage keeps a plain and an exponentially weighted mean over a
// fixed window.
type MovingAverage struct {
	width   int
	inputs  []float64
	next    int
	count   int
	sum     float64
	ewma    float64
	aweight float64
	bweight float64
}

// NewMovingAverage creates a window of the given width. The exponential
// mean starts at initial; the plain mean starts empty.
func NewMovingAverage(width int, initial float64) *MovingAverage {
	if width < 1 {
		width = 1
	}
	a := math.Exp(-1.0 / float64(width))
	return &MovingAverage{
		width:   width,
		inputs:  make([]float64, width),
		ewma:    initial,
		aweight: a,
		bweight: 1 - a,
	}
}

// Seed fills the window with v, as if v had been observed width times.
func (m *MovingAverage) Seed(v float64) {
	for i := range m.inputs {
		m.inputs[i] = v
	}
	m.next = 0
	m.count = m.width
	m.sum = v * float64(m.width)
	m.ewma = v
}

// Add pushes one observation.
func (m *MovingAverage) Add(x float64) {
	if m.count >= m.width {
		m.sum -= m.inputs[m.next]
	} else {
		m.count++
	}
	m.inputs[m.next] = x
	m.sum += x
	m.next = (m.next + 1) % m.width
	m.ewma = m.aweight*m.ewma + m.bweight*x
}

// Mean returns the arithmetic mean of the observations in the window.
func (m *MovingAverage) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// EWMA returns the exponentially weighted mean.
func (m *MovingAverage) EWMA() float64 { return m.ewma }

// Width returns the window width.
func (m *MovingAverage) Width() int { return m.width }
