package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Fatal to Start/Reconfigure, reported synchronously.
	ReasonConfiguration         ReasonCode = "configuration"
	ReasonDependencyUnavailable ReasonCode = "dependency_unavailable"
	ReasonDevice                ReasonCode = "device"
	ReasonInvalidState          ReasonCode = "invalid_state"

	// Raised inside the detection loop.
	ReasonRecognitionAmbiguous ReasonCode = "recognition_ambiguous"
	ReasonRecognition          ReasonCode = "recognition"
	ReasonUnrecoverableIO      ReasonCode = "unrecoverable_io"

	ReasonActionSend      ReasonCode = "action_send"
	ReasonActionRateLimit ReasonCode = "action_rate_limit"
)

// Recoverable reports whether an error with this reason leaves the detection
// loop running.
func (r ReasonCode) Recoverable() bool {
	return r == ReasonRecognitionAmbiguous
}
