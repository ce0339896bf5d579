// Package jobs models index build jobs and the stores that track them.
//
// A job moves submitted → running → completed or failed. Stores persist the
// whole job record; the service is the only writer of a given job, so
// stores need no compare-and-swap beyond create-if-absent.
package jobs

import (
	"context"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecforge/errs"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Request asks for an index over the raw vector file at ObjectLocation.
type Request struct {
	BucketName      string `json:"bucketName"`
	ObjectLocation  string `json:"objectLocation"`
	NumberOfVectors int    `json:"numberOfVectors"`
	Dimensions      int    `json:"dimensions"`
}

// Validate checks that every field is present and positive.
func (r Request) Validate() error {
	const op = "jobs.request"
	switch {
	case strings.TrimSpace(r.BucketName) == "":
		return errs.Configuration(op, "bucketName", "is required")
	case strings.TrimSpace(r.ObjectLocation) == "":
		return errs.Configuration(op, "objectLocation", "is required")
	case path.Clean("/"+r.ObjectLocation) == "/":
		return errs.Configuration(op, "objectLocation", "%q does not name an object", r.ObjectLocation)
	case r.NumberOfVectors <= 0:
		return errs.Configuration(op, "numberOfVectors", "must be positive, got %d", r.NumberOfVectors)
	case r.Dimensions <= 0:
		return errs.Configuration(op, "dimensions", "must be positive, got %d", r.Dimensions)
	}
	return nil
}

// Stats are the wall-clock phases of a completed job, in seconds.
type Stats struct {
	DownloadSeconds float64 `json:"download_seconds"`
	BuildSeconds    float64 `json:"build_seconds"`
	TransferSeconds float64 `json:"transfer_seconds"`
	WriteSeconds    float64 `json:"write_seconds"`
	UploadSeconds   float64 `json:"upload_seconds"`
	TotalSeconds    float64 `json:"total_seconds"`
}

// Result describes the index a completed job produced.
type Result struct {
	Bucket        string `json:"bucket"`
	IndexLocation string `json:"index_location"`
	DeviceType    string `json:"device_type"`
	IndexBytes    int64  `json:"index_bytes"`
	Vectors       int    `json:"vectors"`
	Dimensions    int    `json:"dimensions"`
	Stats         Stats  `json:"stats"`
}

// Job is one index build request and its outcome.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Request   Request   `json:"request"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a submitted job with a random id.
func New(req Request) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusSubmitted,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves j to status.
func (j *Job) Transition(to Status) error {
	ok := false
	switch j.Status {
	case StatusSubmitted:
		ok = to == StatusRunning || to == StatusFailed
	case StatusRunning:
		ok = to == StatusCompleted || to == StatusFailed
	}
	if !ok {
		return errs.InvalidState("jobs.transition", "job %s cannot move from %s to %s", j.ID, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

// Store persists jobs.
type Store interface {
	// Create inserts a new job. Creating an existing id is an InvalidState error.
	Create(ctx context.Context, j *Job) error
	// Get returns the job with id or an error matching errs.ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Update replaces a stored job.
	Update(ctx context.Context, j *Job) error
	// List returns every job, oldest first.
	List(ctx context.Context) ([]*Job, error)
	Close() error
}

// NotFound reports a missing job id.
func NotFound(op, id string) error {
	return errs.NotFound(op, "job", id)
}

// SortJobs orders jobs oldest first, then by id.
func SortJobs(list []*Job) {
	slices.SortFunc(list, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
