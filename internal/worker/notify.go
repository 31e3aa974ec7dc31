package worker

// RenderNotifyMessage is the websocket message protocol, forwarded to
// clients through Redis pub/sub. Field names must match the frontend.
type RenderNotifyMessage struct {
	Status        string   `json:"status"`
	SubmissionID  uint     `json:"submission_id"`
	CorrelationID string   `json:"correlation_id"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	MissingFields []string `json:"missing_fields,omitempty"`
}
