package rom

import (
	"fmt"

	"rom-stream-go/internal/movement"
)

// Outcome is the validation bucket of a primary angle.
type Outcome string

const (
	Normal      Outcome = "normal"
	OutOfNormal Outcome = "out_of_normal"
	UnsafeLow   Outcome = "unsafe_low"
	UnsafeHigh  Outcome = "unsafe_high"
)

// Validation is the outcome of ValidateROM.
type Validation struct {
	Outcome       Outcome        `json:"status"`
	InNormalRange bool           `json:"in_normal_range"`
	InMaxRange    bool           `json:"in_max_range"`
	Message       string         `json:"message"`
	NormalRange   movement.Range `json:"normal_range"`
	MaxRange      movement.Range `json:"max_range"`
}

// Classify checks the safe range first, then the normal range. The two
// ranges are treated independently.
func Classify(value float64, normal, safe movement.Range) Validation {
	v := Validation{
		InNormalRange: normal.Contains(value),
		InMaxRange:    safe.Contains(value),
		NormalRange:   normal,
		MaxRange:      safe,
	}
	switch {
	case value < safe.Low:
		v.Outcome = UnsafeLow
		v.Message = fmt.Sprintf("Angle %.1f° is below minimum safe range", value)
	case value > safe.High:
		v.Outcome = UnsafeHigh
		v.Message = fmt.Sprintf("Angle %.1f° exceeds maximum safe range", value)
	case !v.InNormalRange:
		v.Outcome = OutOfNormal
		v.Message = fmt.Sprintf("Angle %.1f° is outside normal range", value)
	default:
		v.Outcome = Normal
		v.Message = "Angle is within normal range"
	}
	return v
}
