package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Aria/pkg/logger"
)

var log = logger.Get("JobStore")

// Store is the in-memory table of jobs keyed by their token. All access
// is guarded by the embedded mutex; callers only ever receive copies of
// the jobs held within, so no external mutation can race the store.
//
// The store is process-lifetime only. Jobs in-flight when the process
// stops are simply abandoned.
type Store struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[uuid.UUID]*Job)}
}

// Create inserts a new PROCESSING job for the locator provided and
// returns a copy of it. The generated token is a V4 UUID (crypto-rand
// backed) and is guaranteed unique against all live jobs.
func (store *Store) Create(locator string, ttl time.Duration) *Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	token := uuid.New()
	for {
		if _, clash := store.jobs[token]; !clash {
			break
		}
		token = uuid.New()
	}

	now := time.Now()
	j := &Job{
		Token:     token,
		Locator:   locator,
		Status:    PROCESSING,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	store.jobs[token] = j
	log.Emit(logger.NEW, "Created %s (expires %s)\n", j, j.ExpiresAt.Format(time.RFC3339))

	cp := *j
	return &cp
}

// Get returns a copy of the job with the token provided, or nil if no
// such job exists.
func (store *Store) Get(token uuid.UUID) *Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	if j, ok := store.jobs[token]; ok {
		cp := *j
		return &cp
	}

	return nil
}

// All returns copies of every job currently held by the store.
func (store *Store) All() []*Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make([]*Job, 0, len(store.jobs))
	for _, j := range store.jobs {
		cp := *j
		out = append(out, &cp)
	}

	return out
}

// MarkReady transitions the job to READY with the result path provided.
// Returns false if the job no longer exists (already reaped or consumed),
// or is not PROCESSING; a deleted job is never resurrected.
func (store *Store) MarkReady(token uuid.UUID, resultPath string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[token]
	if !ok || j.Status != PROCESSING {
		return false
	}

	j.Status = READY
	j.ResultPath = resultPath
	j.Progress = 100
	return true
}

// MarkFailed transitions the job to FAILED with the detail provided.
// Returns false if the job no longer exists or is not PROCESSING.
func (store *Store) MarkFailed(token uuid.UUID, detail string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[token]
	if !ok || j.Status != PROCESSING {
		return false
	}

	j.Status = FAILED
	j.ErrorDetail = detail
	return true
}

// SetProgress records telemetry for a PROCESSING job. Values are
// clamped to [0, 100]. A no-op for absent or terminal jobs.
func (store *Store) SetProgress(token uuid.UUID, pct int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[token]
	if !ok || j.Status != PROCESSING {
		return
	}

	j.Progress = min(max(pct, 0), 100)
}

// Remove atomically removes and returns the job with the token
// provided, or nil if it does not exist. Both the reaper and the
// one-time fetch path rely on this being atomic: whichever calls
// first wins, and at most one caller ever receives the job.
func (store *Store) Remove(token uuid.UUID) *Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[token]
	if !ok {
		return nil
	}

	delete(store.jobs, token)
	log.Emit(logger.REMOVE, "Removed %s\n", j)
	return j
}

// SnapshotExpired returns copies of every job whose expiry has passed
// at the instant provided. The returned jobs are candidates only; the
// caller must still Remove each one, and must tolerate Remove
// returning nil if another path consumed the job in the meantime.
func (store *Store) SnapshotExpired(now time.Time) []*Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	expired := make([]*Job, 0)
	for _, j := range store.jobs {
		if j.Expired(now) {
			cp := *j
			expired = append(expired, &cp)
		}
	}

	return expired
}
