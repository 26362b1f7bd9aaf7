package domain

// OverallStats aggregates fact-check history across all sessions for the
// dashboard endpoint.
type OverallStats struct {
	TotalClaims     int     `json:"totalClaims"`
	TotalActuations int     `json:"totalZaps"`
	TruthRate       float64 `json:"truthRate"`
	FalseRate       float64 `json:"falseRate"`
}
