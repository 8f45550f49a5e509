package interpret

import "math/rand"

// RandomScaleValue returns a uniformly random 1-5 rating.
//
// This is a demo/seeding affordance ONLY. Production interpretation never
// substitutes a value when no numeric signal exists; it records nil. Keeping
// the generator here, separate from Interpret, makes that boundary explicit.
func RandomScaleValue(rng *rand.Rand) int {
	return 1 + rng.Intn(5)
}
