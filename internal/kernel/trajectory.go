package kernel

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/loom/internal/models"
	"github.com/nvandessel/loom/internal/vecmath"
)

// Curve shapes the strength of a trajectory pull over its lifetime.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	CurveSigmoid     Curve = "sigmoid"
)

// ParseCurve maps a case-insensitive name to a Curve.
func ParseCurve(s string) (Curve, error) {
	switch c := Curve(strings.ToLower(strings.TrimSpace(s))); c {
	case CurveLinear, CurveExponential, CurveSigmoid:
		return c, nil
	case "":
		return CurveLinear, nil
	}
	return "", fmt.Errorf("unknown curve %q (valid: linear, exponential, sigmoid)", s)
}

// shape maps progress p in [0, 1] to a pull strength in [0, 1].
func (c Curve) shape(p float64) float64 {
	switch c {
	case CurveExponential:
		return 1 - math.Exp(-5*p)
	case CurveSigmoid:
		return 1 / (1 + math.Exp(-10*(p-0.5)))
	default:
		return p
	}
}

// Trajectory pulls one node toward a target vector for a bounded time.
type Trajectory struct {
	Node     models.NodeID `json:"node"`
	Target   []float64     `json:"-"`
	Start    float64       `json:"start"`
	Duration float64       `json:"duration"`
	Curve    Curve         `json:"curve"`
	Rate     float64       `json:"rate"`
}

// progress returns the elapsed share of the trajectory at time now.
func (t *Trajectory) progress(now float64) float64 {
	if t.Duration <= 0 {
		return 1
	}
	return vecmath.Clamp((now-t.Start)/t.Duration, 0, 1)
}

// EvolveToward registers a trajectory that pulls node toward target over
// duration units of engine time. The pull at progress p is
// rate * curve(p) * (target - v) per unit time, applied in the force phase.
// The metadata subregion is never pulled.
func (e *Engine) EvolveToward(node models.NodeID, target []float64, duration float64, curve Curve, rate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.View(node) == nil {
		return fmt.Errorf("evolve node %d: %w", node, models.ErrInvalidIndex)
	}
	if len(target) != e.cfg.Layout.Dimension {
		return fmt.Errorf("evolve node %d: target has %d dimensions, want %d", node, len(target), e.cfg.Layout.Dimension)
	}
	if duration <= 0 {
		return fmt.Errorf("evolve node %d: duration must be positive, got %v", node, duration)
	}
	if rate <= 0 {
		rate = 1
	}
	if curve == "" {
		curve = CurveLinear
	}
	e.trajectories = append(e.trajectories, Trajectory{
		Node:     node,
		Target:   append([]float64(nil), target...),
		Start:    e.time,
		Duration: duration,
		Curve:    curve,
		Rate:     rate,
	})
	return nil
}

// Trajectories returns copies of the active trajectories.
func (e *Engine) Trajectories() []Trajectory {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trajectory, len(e.trajectories))
	for i, t := range e.trajectories {
		t.Target = append([]float64(nil), t.Target...)
		out[i] = t
	}
	return out
}

// expireTrajectories drops trajectories whose duration has elapsed.
func (e *Engine) expireTrajectories() int {
	kept := e.trajectories[:0]
	for _, t := range e.trajectories {
		if e.time < t.Start+t.Duration {
			kept = append(kept, t)
		}
	}
	expired := len(e.trajectories) - len(kept)
	clear(e.trajectories[len(kept):])
	e.trajectories = kept
	return expired
}

// trajectoryIndex groups active trajectories by node for the force phase.
func (e *Engine) trajectoryIndex() map[models.NodeID][]*Trajectory {
	if len(e.trajectories) == 0 {
		return nil
	}
	idx := make(map[models.NodeID][]*Trajectory, len(e.trajectories))
	for i := range e.trajectories {
		t := &e.trajectories[i]
		idx[t.Node] = append(idx[t.Node], t)
	}
	return idx
}
