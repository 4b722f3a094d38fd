package wheel

import (
	"errors"
	"fmt"
	"math"
)

// TwoPi is one full revolution in radians.
const TwoPi = 2 * math.Pi

var (
	ErrInvalidSlotCount  = errors.New("slot count must be >= 1")
	ErrInvalidViewport   = errors.New("viewport width must be > 0")
	ErrInvalidCardSize   = errors.New("card width must be > 0 and card height >= 0")
	ErrInvalidVisibility = errors.New("visibility must be in (0, 1]")
)

// Layout holds the inputs the host layout fixes once per wheel.
type Layout struct {
	SlotCount     int
	ViewportWidth float64
	CardWidth     float64
	CardHeight    float64
	Visibility    float64 // fraction of the card width that occupies the rim
}

// Config is the immutable geometry of a wheel, derived once from a Layout.
//
// All distances are expressed in "circumference units": the linear distance
// measured along the rim of the wheel.
type Config struct {
	SlotCount  int
	CardHeight float64

	AnglePerSlot           float64 // radians
	EffectiveSlotWidth     float64
	Radius                 float64
	Circumference          float64
	DistanceToScreenFactor float64 // circumference units per on-screen pixel
}

// NewConfig validates the layout and derives the wheel geometry.
func NewConfig(l Layout) (Config, error) {
	if l.SlotCount < 1 {
		return Config{}, fmt.Errorf("%w (got %d)", ErrInvalidSlotCount, l.SlotCount)
	}
	if !(l.ViewportWidth > 0) || math.IsInf(l.ViewportWidth, 0) {
		return Config{}, fmt.Errorf("%w (got %v)", ErrInvalidViewport, l.ViewportWidth)
	}
	if !(l.CardWidth > 0) || math.IsInf(l.CardWidth, 0) || !(l.CardHeight >= 0) {
		return Config{}, fmt.Errorf("%w (got %vx%v)", ErrInvalidCardSize, l.CardWidth, l.CardHeight)
	}
	if !(l.Visibility > 0 && l.Visibility <= 1) {
		return Config{}, fmt.Errorf("%w (got %v)", ErrInvalidVisibility, l.Visibility)
	}

	n := float64(l.SlotCount)
	slotWidth := l.CardWidth * l.Visibility

	// Never narrower than the viewport: a tiny circle would turn every drag
	// into several revolutions.
	radius := math.Max(slotWidth*n/TwoPi, l.ViewportWidth)
	circumference := TwoPi * radius

	return Config{
		SlotCount:              l.SlotCount,
		CardHeight:             l.CardHeight,
		AnglePerSlot:           TwoPi / n,
		EffectiveSlotWidth:     slotWidth,
		Radius:                 radius,
		Circumference:          circumference,
		DistanceToScreenFactor: circumference / l.ViewportWidth,
	}, nil
}

// SlotDistance returns the distance one slot spans along the rim.
func (c Config) SlotDistance() float64 {
	return c.AnglePerSlot * c.Radius
}
