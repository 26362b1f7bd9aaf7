package monitor

// Server-to-client boundary messages. Field names are the wire protocol the
// frontend consumes; timestamps are Unix milliseconds.

type transcriptMsg struct {
	Type      string `json:"type"` // transcript_interim | transcript_final
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type factCheckStartedMsg struct {
	Type  string `json:"type"` // fact_check_started
	Claim string `json:"claim"`
}

type factCheckResultMsg struct {
	Type       string   `json:"type"` // fact_check_result
	Claim      string   `json:"claim"`
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence"`
	Citations  []string `json:"citations,omitempty"`
}

type actuationDeliveredMsg struct {
	Type      string `json:"type"` // actuation_delivered
	Intensity int    `json:"intensity"`
	Reason    string `json:"reason"`
}

type safetyStatusMsg struct {
	Type           string `json:"type"` // safety_status
	ActuationCount int    `json:"actuationCount"`
	CanActuate     bool   `json:"canActuate"`
	CooldownMs     int64  `json:"cooldownMs"`
	DeniedReason   string `json:"deniedReason,omitempty"`
}

type errorMsg struct {
	Type    string `json:"type"` // error
	Message string `json:"message"`
}

type successMsg struct {
	Type    string `json:"type"` // success
	Message string `json:"message"`
}

// clientMessage is a command accepted from the connection owner. Binary
// frames carry audio and bypass this structure.
type clientMessage struct {
	Type          string  `json:"type"`
	Text          string  `json:"text,omitempty"`
	BaseIntensity float64 `json:"baseIntensity,omitempty"`
	SourceFilter  string  `json:"sourceFilter,omitempty"`
}

const (
	cmdStartMonitoring = "start_monitoring"
	cmdStopMonitoring  = "stop_monitoring"
	cmdEmergencyStop   = "emergency_stop"
	cmdCheckClaim      = "check_claim"
)
