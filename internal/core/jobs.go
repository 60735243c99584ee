package core

// jobs.go tracks asynchronous imports from submission until a retention
// window after they finish.
//
// The registry is an explicit object owned by Service: jobs are created on
// submit, updated as the pipeline moves through its phases, read by pollers
// and garbage-collected by Sweep, which the janitor calls periodically.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobPhase is the current stage of an import job.
type JobPhase string

const (
	PhaseQueued      JobPhase = "queued"
	PhaseValidating  JobPhase = "validating"
	PhaseProbing     JobPhase = "probing"
	PhaseEvolving    JobPhase = "evolving_schema"
	PhaseStaging     JobPhase = "staging"
	PhaseReconciling JobPhase = "reconciling"
	PhaseCleanup     JobPhase = "cleanup"
	PhaseAuditing    JobPhase = "auditing"
	PhaseComplete    JobPhase = "complete"
	PhaseRejected    JobPhase = "rejected"
	PhaseSnapshotted JobPhase = "snapshotted"
	PhaseFailed      JobPhase = "failed"
	PhaseCancelled   JobPhase = "cancelled"
)

var phasePercent = map[JobPhase]int{
	PhaseQueued:      0,
	PhaseValidating:  10,
	PhaseProbing:     30,
	PhaseEvolving:    40,
	PhaseStaging:     50,
	PhaseReconciling: 70,
	PhaseCleanup:     85,
	PhaseAuditing:    90,
}

// Terminal reports whether no further transitions follow.
func (p JobPhase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseRejected, PhaseSnapshotted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// JobProgress is a point-in-time view of a job.
type JobProgress struct {
	JobID     string    `json:"job_id"`
	Phase     JobPhase  `json:"phase"`
	FileName  string    `json:"file_name"`
	Versao    string    `json:"versao,omitempty"`
	Mode      SyncMode  `json:"mode,omitempty"`
	Rows      int       `json:"rows"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent returns the progress as a percentage (0-100).
func (p JobProgress) Percent() int {
	if p.Phase.Terminal() {
		return 100
	}
	return phasePercent[p.Phase]
}

// JobResult is the outcome of a finished job.
type JobResult struct {
	JobID      string       `json:"job_id"`
	Phase      JobPhase     `json:"phase"`
	FileName   string       `json:"file_name"`
	Rows       int          `json:"rows"`
	Errors     []FieldError `json:"errors,omitempty"`
	Sync       *SyncResult  `json:"sync,omitempty"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type job struct {
	progress   JobProgress
	result     *JobResult
	cancel     context.CancelFunc
	done       chan struct{}
	listeners  []chan JobProgress
	finishedAt time.Time
}

// JobRegistry holds in-flight and recently finished jobs.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*job
	now  func() time.Time
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*job),
		now:  time.Now,
	}
}

// Create registers a queued job and returns its ID. cancel is invoked by Cancel.
func (r *JobRegistry) Create(fileName string, cancel context.CancelFunc) string {
	id := uuid.New().String()
	now := r.now()

	r.mu.Lock()
	r.jobs[id] = &job{
		progress: JobProgress{
			JobID:     id,
			Phase:     PhaseQueued,
			FileName:  fileName,
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.mu.Unlock()

	return id
}

// Update applies fn to the job's progress and notifies subscribers.
// Updates to finished or unknown jobs are ignored.
func (r *JobRegistry) Update(id string, fn func(*JobProgress)) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.result != nil {
		r.mu.Unlock()
		return
	}
	fn(&j.progress)
	j.progress.UpdatedAt = r.now()
	notify(j.listeners, j.progress)
	r.mu.Unlock()
}

// SetPhase moves the job to phase.
func (r *JobRegistry) SetPhase(id string, phase JobPhase) {
	r.Update(id, func(p *JobProgress) { p.Phase = phase })
}

// Finish records the result, wakes waiters and closes subscriber channels.
// Only the first call has an effect.
func (r *JobRegistry) Finish(id string, res JobResult) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.result != nil {
		r.mu.Unlock()
		return
	}
	res.JobID = id
	res.FileName = j.progress.FileName
	j.progress.Phase = res.Phase
	j.progress.Error = res.Error
	j.progress.UpdatedAt = r.now()
	j.result = &res
	j.finishedAt = j.progress.UpdatedAt
	notify(j.listeners, j.progress)
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
	close(j.done)
	r.mu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}
}

// notify never blocks; callers hold r.mu so channels cannot be closed mid-send.
func notify(listeners []chan JobProgress, p JobProgress) {
	for _, ch := range listeners {
		select {
		case ch <- p:
		default:
			// Slow subscriber; it will see a later update.
		}
	}
}

// Get returns the current progress of a job.
func (r *JobRegistry) Get(id string) (JobProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return JobProgress{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.progress, nil
}

// Subscribe returns a channel of progress updates, closed when the job finishes.
// The current progress is delivered immediately.
func (r *JobRegistry) Subscribe(id string) (<-chan JobProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	ch := make(chan JobProgress, 10)
	ch <- j.progress
	if j.result != nil {
		close(ch)
		return ch, nil
	}
	j.listeners = append(j.listeners, ch)
	return ch, nil
}

// Cancel requests cancellation. Work already past staging still completes.
func (r *JobRegistry) Cancel(id string) error {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.cancel != nil {
		j.cancel()
	}
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *JobRegistry) Wait(ctx context.Context, id string) (JobResult, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return JobResult{}, ctx.Err()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return *j.result, nil
}

// Sweep removes jobs finished more than retention ago and returns how many.
func (r *JobRegistry) Sweep(retention time.Duration) int {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.result != nil && j.finishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Active returns the number of jobs that have not finished.
func (r *JobRegistry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if j.result == nil {
			n++
		}
	}
	return n
}
