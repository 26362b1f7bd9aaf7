package domain

import (
	"math"
	"time"
)

// FactCheck is the durable record of one verified claim. Rows are append-only
// and never updated after creation.
type FactCheck struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	Claim      string    `json:"claim"`
	Verdict    Verdict   `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Evidence   string    `json:"evidence"`
	Actuated   bool      `json:"actuated"`
	// Intensity is set only when Actuated is true; it is then in [1,100].
	Intensity *int `json:"intensity,omitempty"`
}

// Intensity computes the stimulus intensity for a false claim. The floor
// runs before the clamp: base=80 with an over-range confidence still caps
// at 100, and a near-zero confidence still delivers at least 1.
func Intensity(base int, confidence float64) int {
	v := int(math.Floor(float64(base) * confidence))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
