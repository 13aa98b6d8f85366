// Package clock provides the monotonic time source and freshness predicates
// used uniformly across the fusion pipeline so staleness decisions are
// insensitive to wall-clock jumps.
package clock

import (
	"time"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
)

// Source returns monotonic seconds since an arbitrary epoch. Production code
// uses Real; tests inject a Fake for deterministic ticks.
type Source interface {
	NowS() float64
}

// Real is the production clock, backed by time.Now's monotonic reading.
type Real struct {
	start time.Time
}

// NewReal returns a Source anchored at the current instant.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// NowS returns seconds elapsed since the clock was created.
func (r *Real) NowS() float64 {
	return time.Since(r.start).Seconds()
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	t float64
}

// NewFake returns a Source starting at t0 seconds.
func NewFake(t0 float64) *Fake { return &Fake{t: t0} }

// Set pins the fake clock to t seconds.
func (f *Fake) Set(t float64) { f.t = t }

// Advance moves the fake clock forward by dt seconds.
func (f *Fake) Advance(dt float64) { f.t += dt }

// NowS returns the current fake time.
func (f *Fake) NowS() float64 { return f.t }

// IsFresh reports whether a sample timestamped ts is still within maxAge of
// now. now and ts are both monotonic seconds from the same Source.
func IsFresh(now, ts, maxAge float64) bool {
	return now-ts <= maxAge
}

// CheckFresh returns model.ErrStaleSample when the sample has aged out.
func CheckFresh(now, ts, maxAge float64) error {
	if !IsFresh(now, ts, maxAge) {
		return model.ErrStaleSample
	}
	return nil
}
