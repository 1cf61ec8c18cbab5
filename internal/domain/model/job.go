package model

// JobStatus is the status string reported by the remote endpoint.
// Values are upper-case on the wire.
type JobStatus string

const (
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobInput is the generation payload sent on submission.
type JobInput struct {
	Image             string  `json:"image"` // base64 PNG
	Prompt            string  `json:"prompt"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	TrueCFGScale      float64 `json:"true_cfg_scale"`
}

// SubmitRequest is the body of POST {base}/run.
type SubmitRequest struct {
	Input JobInput `json:"input"`
}

// SubmitResponse carries the job id assigned by the endpoint.
type SubmitResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status,omitempty"`
}

// JobOutput is the completed job's result payload.
type JobOutput struct {
	ImageBase64 string `json:"image_base64"`
}

// StatusResponse is the body of GET {base}/status/{id}. Output is only
// present once the job has completed; Error only on failure.
type StatusResponse struct {
	ID     string     `json:"id"`
	Status JobStatus  `json:"status"`
	Output *JobOutput `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}
