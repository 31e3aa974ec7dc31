package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type constants shared by the queue producer and consumer.
const (
	TypeRenderSubmission = "submission:render"
)

// RenderSubmissionPayload carries the minimum needed to render one
// submission to PDF.
type RenderSubmissionPayload struct {
	SubmissionID  uint   `json:"submission_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewRenderSubmissionTask builds a render task for a stored submission.
func NewRenderSubmissionTask(id uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RenderSubmissionPayload{
		SubmissionID:  id,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRenderSubmission, payload), nil
}
