package main

import (
	"time"
)

// fpsMeter is an exponential moving average of the delivery rate.
type fpsMeter struct {
	prev  time.Time
	count int
	avg   float64
}

func newFPSMeter() *fpsMeter {
	return &fpsMeter{prev: time.Now()}
}

func (m *fpsMeter) Tick() float64 {
	now := time.Now()
	dt := now.Sub(m.prev).Seconds()
	m.prev = now
	m.count++
	if dt <= 0 {
		return m.avg
	}
	cur := 1 / dt
	if m.count <= 3 {
		m.avg = cur
	} else {
		m.avg = 0.9*m.avg + 0.1*cur
	}
	return m.avg
}
