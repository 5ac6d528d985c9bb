package job_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Aria/internal/job"
	"github.com/stretchr/testify/assert"
)

func Test_Create_IssuesUniqueTokens(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 500; i++ {
		created := store.Create("https://example.test/video", time.Minute)
		assert.False(t, seen[created.Token], "token %s was issued twice", created.Token)
		seen[created.Token] = true
	}
}

func Test_Create_ConcurrentSubmissions(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	const submitters = 32
	wg := sync.WaitGroup{}
	tokens := make(chan uuid.UUID, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens <- store.Create("https://example.test/video", time.Minute).Token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[uuid.UUID]bool)
	for token := range tokens {
		assert.False(t, seen[token])
		seen[token] = true

		fetched := store.Get(token)
		assert.NotNil(t, fetched)
		assert.Equal(t, job.PROCESSING, fetched.Status)
	}
	assert.Len(t, seen, submitters)
}

func Test_Get_ReturnsCopies(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	created := store.Create("https://example.test/video", time.Minute)
	fetched := store.Get(created.Token)
	fetched.Status = job.FAILED
	fetched.ErrorDetail = "mutated externally"

	assert.Equal(t, job.PROCESSING, store.Get(created.Token).Status)
	assert.Empty(t, store.Get(created.Token).ErrorDetail)
}

func Test_StatusTransitions_TerminalExactlyOnce(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	created := store.Create("https://example.test/video", time.Minute)
	assert.True(t, store.MarkReady(created.Token, "/tmp/out.mp3"))

	// Terminal states never transition again.
	assert.False(t, store.MarkFailed(created.Token, "too late"))
	assert.False(t, store.MarkReady(created.Token, "/tmp/other.mp3"))

	fetched := store.Get(created.Token)
	assert.Equal(t, job.READY, fetched.Status)
	assert.Equal(t, "/tmp/out.mp3", fetched.ResultPath)
	assert.Equal(t, 100, fetched.Progress)
}

func Test_Mark_DoesNotResurrectRemovedJob(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	created := store.Create("https://example.test/video", time.Minute)
	assert.NotNil(t, store.Remove(created.Token))

	assert.False(t, store.MarkReady(created.Token, "/tmp/out.mp3"))
	assert.False(t, store.MarkFailed(created.Token, "engine exploded"))
	assert.Nil(t, store.Get(created.Token))
}

func Test_Remove_AtMostOneWinner(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	created := store.Create("https://example.test/video", time.Minute)
	store.MarkReady(created.Token, "/tmp/out.mp3")

	const contenders = 16
	winners := make(chan *job.Job, contenders)
	wg := sync.WaitGroup{}
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if removed := store.Remove(created.Token); removed != nil {
				winners <- removed
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for removed := range winners {
		count++
		assert.Equal(t, created.Token, removed.Token)
	}
	assert.Equal(t, 1, count, "exactly one remover should win")
}

func Test_SnapshotExpired_OnlyReturnsExpiredJobs(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	expired := store.Create("https://example.test/old", -time.Minute)
	live := store.Create("https://example.test/new", time.Hour)

	candidates := store.SnapshotExpired(time.Now())
	assert.Len(t, candidates, 1)
	assert.Equal(t, expired.Token, candidates[0].Token)

	// A snapshot is read-only: the live job remains untouched.
	assert.NotNil(t, store.Get(live.Token))
	assert.NotNil(t, store.Get(expired.Token))
}

func Test_SetProgress_TelemetryOnly(t *testing.T) {
	t.Parallel()
	store := job.NewStore()

	created := store.Create("https://example.test/video", time.Minute)
	store.SetProgress(created.Token, 42)
	assert.Equal(t, 42, store.Get(created.Token).Progress)
	assert.Equal(t, job.PROCESSING, store.Get(created.Token).Status)

	store.SetProgress(created.Token, 1000)
	assert.Equal(t, 100, store.Get(created.Token).Progress)

	store.MarkFailed(created.Token, "quota exceeded")
	store.SetProgress(created.Token, 10)
	assert.Equal(t, 100, store.Get(created.Token).Progress, "terminal jobs ignore progress updates")
}
