package hardware

import (
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgeTimeout bounds how long an edge watcher waits before checking for
// shutdown.
const edgeTimeout = 100 * time.Millisecond

// quadPos maps a state (a<<1 | b) to its place in the forward Gray sequence.
var quadPos = [4]int{0b00: 0, 0b01: 1, 0b11: 2, 0b10: 3}

// Quadrature counts a two-channel wheel encoder on both edges of both
// channels.
type Quadrature struct {
	a, b  gpio.PinIn
	count atomic.Int64

	mu    sync.Mutex
	state int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewQuadrature arms edge detection and starts counting.
func NewQuadrature(a, b gpio.PinIn) (*Quadrature, error) {
	for _, p := range []gpio.PinIn{a, b} {
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return nil, err
		}
	}
	q := &Quadrature{a: a, b: b, stop: make(chan struct{})}
	q.state = q.levels()

	q.wg.Add(2)
	go q.watch(a)
	go q.watch(b)
	return q, nil
}

func (q *Quadrature) levels() int {
	s := 0
	if q.a.Read() == gpio.High {
		s |= 0b10
	}
	if q.b.Read() == gpio.High {
		s |= 0b01
	}
	return s
}

func (q *Quadrature) watch(p gpio.PinIn) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		default:
		}
		if p.WaitForEdge(edgeTimeout) {
			q.step()
		}
	}
}

func (q *Quadrature) step() {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := q.levels()
	switch (quadPos[next] - quadPos[q.state] + 4) % 4 {
	case 1:
		q.count.Add(1)
	case 3:
		q.count.Add(-1)
	}
	q.state = next
}

// Read returns the current count.
func (q *Quadrature) Read() int64 {
	return q.count.Load()
}

// Write replaces the count.
func (q *Quadrature) Write(count int64) {
	q.count.Store(count)
}

// Close stops the edge watchers.
func (q *Quadrature) Close() error {
	select {
	case <-q.stop:
	default:
		close(q.stop)
	}
	q.wg.Wait()
	return nil
}
