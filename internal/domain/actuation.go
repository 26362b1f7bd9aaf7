package domain

import "time"

// ActuationRecord logs one delivered stimulus. A row exists if and only if
// the external device confirmed delivery; the governor's rate accounting is
// computed over these rows, independent of the FactCheck history.
type ActuationRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Intensity int       `json:"intensity"`
	Claim     string    `json:"claim"`
}
