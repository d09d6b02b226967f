package hebbian

import (
	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/vecmath"
)

// Modulation scales the learning rate of one global pass. The neutral
// value is 1.
type Modulation float64

// Neutral leaves the learning rate unchanged.
const Neutral Modulation = 1

// NewModulation derives the learning-rate factor from context signals:
// (0.5 + curiosity*0.5) * (1 - stress*0.3). Missing signals take their
// neutral values, curiosity 1 and stress 0.
func NewModulation(signals map[string]float64) Modulation {
	curiosity := 1.0
	if v, ok := signals[constants.SignalCuriosity]; ok {
		curiosity = vecmath.Clamp(v, 0, 1)
	}
	stress := 0.0
	if v, ok := signals[constants.SignalStress]; ok {
		stress = vecmath.Clamp(v, 0, 1)
	}
	base := 1 - constants.CuriosityWeight
	return Modulation((base + curiosity*constants.CuriosityWeight) * (1 - stress*constants.StressWeight))
}
