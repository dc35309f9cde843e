package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is absorbing: once a job is completed
// or failed it never transitions again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type VocalType string

const (
	VocalTypeFemale VocalType = "female"
	VocalTypeMale   VocalType = "male"
)

func (v VocalType) Valid() bool {
	return v == VocalTypeFemale || v == VocalTypeMale
}

// Clef maps the declared vocal register to a notation clef. The mapping is a
// fixed two-way lookup; the clef is never inferred from analyzed pitch data.
func (v VocalType) Clef() Clef {
	if v == VocalTypeMale {
		return ClefBass
	}
	return ClefTreble
}

type Clef string

const (
	ClefTreble Clef = "treble"
	ClefBass   Clef = "bass"
)

// Submission is the immutable input of a transcription job: the uploaded
// file's location in the originals bucket plus the parameters the pipeline
// needs. It is never mutated after the job is created.
type Submission struct {
	OriginalFilename string
	StorageKey       string
	ContentType      string
	// Namespace is the folder under the separated bucket that receives the
	// derived stems (storage key minus extension).
	Namespace string
	VocalType VocalType
}

// Result is the transcription output, present only on completed jobs.
type Result struct {
	Clef Clef `json:"clef"`
	// OriginalFilename has its extension stripped for display.
	OriginalFilename string `json:"original_filename"`
	// FileURL is a time-limited presigned URL to the original upload.
	FileURL string `json:"file_url"`
	Notes   []Note `json:"notes"`
}

// Job is one transcription request and its lifecycle state. Only the worker
// loop mutates Status, Result and Error, each exactly once.
type Job struct {
	ID        string
	Status    JobStatus
	Input     Submission
	Result    *Result
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewJob(input Submission) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusWaiting,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a snapshot safe to hand out without holding the store lock.
// Result and its note slice are shared but treated as immutable once set.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}
