package vecstore

import (
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/nvandessel/loom/internal/constants"
	"github.com/nvandessel/loom/internal/vecmath"
)

// goldenRatio spaces the spatial spiral.
const goldenRatio = 1.618033988749895

// HashLabel returns the stable seed for a node label.
func HashLabel(label string) uint64 {
	return xxhash.Sum64String(label)
}

// initializeVector fills v from seed. Every subregion is derived from the
// seed alone so re-creating a node from the same label is reproducible.
func initializeVector(v []float64, layout Layout, seed uint64) {
	for i := range v {
		v[i] = 0
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	// Identity: 16-bit lanes of the hash mapped to [-1, 1].
	id := layout.Identity.Slice(v)
	for i := range id {
		lane := (seed >> (uint(i*16) % 64)) & 0xffff
		id[i] = float64(lane)/32767.5 - 1
	}

	// Spatial: a decaying spiral inside the ball.
	sp := layout.Spatial.Slice(v)
	r := float64(seed%1000) / 1000 * constants.InitialBallRadius
	theta := float64(seed%360) / 180 * math.Pi
	phi := float64((seed>>16)%180) / 180 * math.Pi
	for i := 0; i < len(sp); i += 3 {
		coords := [3]float64{
			r * math.Sin(phi) * math.Cos(theta),
			r * math.Sin(phi) * math.Sin(theta),
			r * math.Cos(phi),
		}
		for k := 0; k < 3 && i+k < len(sp); k++ {
			sp[i+k] = coords[k]
		}
		r *= 0.95
		theta += goldenRatio
		phi += math.Pi / 8
	}
	vecmath.ProjectToBall(sp, constants.InitialBallRadius)

	// Semantic: zero-mean Gaussian with Xavier scaling.
	sem := layout.Semantic.Slice(v)
	scale := math.Sqrt(2 / float64(len(sem)))
	for i := range sem {
		sem[i] = rng.NormFloat64() * scale
	}

	// Activation and history start at zero.

	// Connection-weight cache: small random.
	conn := layout.Connections.Slice(v)
	for i := range conn {
		conn[i] = rng.Float64() * 0.01
	}

	// Auxiliary field: neutral.
	field := layout.Field.Slice(v)
	for i := range field {
		field[i] = 0.5
	}

	v[layout.Metadata.Start+MetaActive] = 1
}
