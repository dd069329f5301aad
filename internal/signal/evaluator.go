// Package signal combines the spot book's rolling returns with the
// prediction market's quote staleness into a discrete directional
// recommendation (spec.md §4.4).
package signal

import (
	"fmt"
	"sync"
	"time"

	"spotarb/internal/broadcast"
	"spotarb/internal/types"
)

// Evaluator holds the configured thresholds and the latest computed
// state.
type Evaluator struct {
	tau1                 float64
	tau3                 float64
	stalenessThresholdMs int64
	minConfidence        float64

	Bus *broadcast.Bus[types.SignalEvent]

	mu    sync.RWMutex
	state types.SignalState
}

// NewEvaluator constructs an Evaluator with the four thresholds of
// spec.md §4.4: tau1/tau3 are fractional return magnitudes,
// stalenessThresholdMs is sigma, minConfidence is C_min.
func NewEvaluator(tau1, tau3 float64, stalenessThresholdMs int64, minConfidence float64) *Evaluator {
	return &Evaluator{
		tau1:                 tau1,
		tau3:                 tau3,
		stalenessThresholdMs: stalenessThresholdMs,
		minConfidence:        minConfidence,
		Bus:                  broadcast.New[types.SignalEvent](64),
		state:                types.SignalState{Side: types.SideNone},
	}
}

// Recompute applies the decision table of spec.md §4.4 and stores the
// result. A SignalEvent is broadcast only when the resulting side is
// not "none".
func (e *Evaluator) Recompute(r1, r3 float64, stalenessMs int64) types.SignalState {
	var side types.Side = types.SideNone
	var confidence float64
	var reasons []string

	laggingPredictionMarket := stalenessMs > e.stalenessThresholdMs

	switch {
	case r1 > e.tau1 && laggingPredictionMarket:
		side = types.SideUp
		confidence += 0.5
		reasons = append(reasons, fmt.Sprintf(
			"r1=%.5f exceeds tau1=%.5f while prediction-market staleness=%dms exceeds sigma=%dms",
			r1, e.tau1, stalenessMs, e.stalenessThresholdMs))
	case r1 < -e.tau1 && laggingPredictionMarket:
		side = types.SideDown
		confidence += 0.5
		reasons = append(reasons, fmt.Sprintf(
			"r1=%.5f is below -tau1=%.5f while prediction-market staleness=%dms exceeds sigma=%dms",
			r1, -e.tau1, stalenessMs, e.stalenessThresholdMs))
	}

	switch {
	case side == types.SideUp && r3 > e.tau3:
		confidence += 0.3
		reasons = append(reasons, fmt.Sprintf("confirmed by r3=%.5f exceeding tau3=%.5f", r3, e.tau3))
	case side == types.SideDown && r3 < -e.tau3:
		confidence += 0.3
		reasons = append(reasons, fmt.Sprintf("confirmed by r3=%.5f below -tau3=%.5f", r3, -e.tau3))
	}

	if confidence < e.minConfidence {
		side = types.SideNone
		confidence = 0
		reasons = nil
	}

	state := types.SignalState{
		Side:        side,
		Confidence:  confidence,
		Reasons:     reasons,
		Return1s:    r1,
		Return3s:    r3,
		StalenessMs: stalenessMs,
		ComputedAt:  time.Now(),
	}

	e.mu.Lock()
	e.state = state
	e.mu.Unlock()

	if side != types.SideNone {
		e.Bus.Publish(types.SignalEvent{State: state})
	}
	return state
}

// State returns the most recently computed signal state.
func (e *Evaluator) State() types.SignalState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}
