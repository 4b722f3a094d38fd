package wheel

import "math"

// The functions in this file derive everything the renderer needs from the
// single stored quantity, the cumulative drag distance. They are pure: the
// same distance and Config always yield the same result.

// Angle returns the wheel rotation in radians. Its sign follows the drag
// direction.
func Angle(distance float64, cfg Config) float64 {
	return distance / cfg.Radius
}

// FractionalIndex returns the continuous slot position in [0, N).
//
// Dragging in the negative direction walks the index up from zero; dragging
// in the positive direction walks it down from N. An exact slot boundary in
// the positive direction resolves to 0, never N.
func FractionalIndex(distance float64, cfg Config) float64 {
	a := Angle(distance, cfg)
	wrapped := math.Abs(math.Mod(a, TwoPi)) / cfg.AnglePerSlot
	if a < 0 {
		return wrapped
	}
	if wrapped == 0 {
		return 0
	}
	return float64(cfg.SlotCount) - wrapped
}

// ActiveIndex returns the slot nearest to the fractional index, always in
// [0, N-1].
func ActiveIndex(distance float64, cfg Config) int {
	return NormalizeIndex(nearestSlot(FractionalIndex(distance, cfg)), cfg.SlotCount)
}

// NormalizeIndex maps any integer slot onto [0, n-1]. A rounded index of n
// is the same rim position as 0.
func NormalizeIndex(i, n int) int {
	if n < 1 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func nearestSlot(fractional float64) int {
	if math.IsNaN(fractional) || math.IsInf(fractional, 0) {
		return 0
	}
	return int(math.Round(fractional))
}

// RestingDistance is the exact distance at which slot index sits under the
// pointer, within the canonical revolution.
func RestingDistance(index int, cfg Config) float64 {
	return -float64(index) * cfg.SlotDistance()
}

// SnapPlan describes the two-step correction used when a release animation
// lands on a slot.
type SnapPlan struct {
	// Rebased is a distance with the same visual angle as the input but
	// inside the canonical revolution, so the only offset left to the
	// target is the sub-slot remainder.
	Rebased float64

	// Target is the resting distance of the nearest slot. It is not
	// normalized: when the nearest slot is N it lies one revolution away
	// from slot 0, which keeps the correction under half a slot.
	Target float64

	// Remainder is FractionalIndex minus the nearest slot, in [-0.5, 0.5].
	Remainder float64

	// Index is the settled slot in [0, N-1].
	Index int
}

// PlanSnap computes where a wheel resting at distance should land.
func PlanSnap(distance float64, cfg Config) SnapPlan {
	f := FractionalIndex(distance, cfg)
	k := nearestSlot(f)
	slot := cfg.SlotDistance()
	return SnapPlan{
		Rebased:   -f * slot,
		Target:    -float64(k) * slot,
		Remainder: f - float64(k),
		Index:     NormalizeIndex(k, cfg.SlotCount),
	}
}

// SlotAngle is the fixed rotation of card i on the wheel, in radians.
func SlotAngle(i int, cfg Config) float64 {
	return float64(i) * cfg.AnglePerSlot
}

// CardLift returns the vertical offset of card i for a given fractional
// index. The card under the pointer is raised by half its height and the
// raise falls off linearly to zero one slot away. Slot distance is measured
// around the rim, so card 0 also rises when the wheel sits near N.
func CardLift(i int, fractional float64, cfg Config) float64 {
	n := float64(cfg.SlotCount)
	delta := math.Mod(fractional-float64(i), n)
	if delta > n/2 {
		delta -= n
	} else if delta < -n/2 {
		delta += n
	}
	delta = math.Abs(delta)
	if delta >= 1 {
		return 0
	}
	return -(cfg.CardHeight / 2) * (1 - delta)
}

// Placement is where one card is drawn for a frame.
type Placement struct {
	Index int
	Angle float64 // fixed rotation on the wheel, radians
	Lift  float64 // vertical offset, negative is up
}

// Placements returns every card's placement for the given distance.
func Placements(distance float64, cfg Config) []Placement {
	f := FractionalIndex(distance, cfg)
	out := make([]Placement, cfg.SlotCount)
	for i := range out {
		out[i] = Placement{
			Index: i,
			Angle: SlotAngle(i, cfg),
			Lift:  CardLift(i, f, cfg),
		}
	}
	return out
}
