package queue

// FileLocation addresses one object in the shared bucket.
type FileLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// GenerationRequest is the outbound message asking the worker fleet to build
// artifacts for one source video. JobID doubles as the correlation id the
// worker echoes back on every completion channel.
type GenerationRequest struct {
	JobID          string        `json:"jobId"`
	Input          FileLocation  `json:"input"`
	Output         FileLocation  `json:"output"`
	AudioOutput    *FileLocation `json:"audioOutput,omitempty"`
	ResponseStream string        `json:"responseStream"`
	Args           []string      `json:"args,omitempty"`
}

// CompletionMessage is the inbound completion report. The audio fields are
// absent when the job has no audio track; absence is not failure.
type CompletionMessage struct {
	JobID             string  `json:"jobId"`
	Success           bool    `json:"success"`
	ErrorMessage      *string `json:"errorMessage,omitempty"`
	AudioSuccess      *bool   `json:"audioSuccess,omitempty"`
	AudioErrorMessage *string `json:"audioErrorMessage,omitempty"`
}
