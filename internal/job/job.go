package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	PROCESSING Status = iota
	READY
	FAILED
)

func (s Status) String() string {
	switch s {
	case PROCESSING:
		return "PROCESSING"
	case READY:
		return "READY"
	case FAILED:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", int(s))
	}
}

// Job tracks the lifecycle of a single submitted extraction request. The
// token is the sole capability for querying or fetching the job; it is
// never reused and is only ever known to the submitting client.
//
// A job is created PROCESSING and transitions exactly once to READY
// (ResultPath set) or FAILED (ErrorDetail set). There is no transition
// out of a terminal status; the job is simply removed, either by the
// reaper once it expires or by a one-time fetch consuming it.
type Job struct {
	Token       uuid.UUID
	Locator     string
	Status      Status
	ResultPath  string
	ErrorDetail string
	Progress    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether this job has outlived its TTL at the
// provided instant.
func (j *Job) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{token=%s status=%s}", j.Token, j.Status)
}
