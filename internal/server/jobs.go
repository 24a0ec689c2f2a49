package server

import (
	"sync"

	"github.com/google/uuid"

	"instaroom/internal/pipeline"
)

// JobStatus is the lifecycle state of one generation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job tracks one pipeline run for one username.
type Job struct {
	ID       string              `json:"job_id"`
	Username string              `json:"username"`
	Status   JobStatus           `json:"status"`
	Error    string              `json:"error,omitempty"`
	Result   *pipeline.RunResult `json:"result,omitempty"`
}

// jobStore is an in-memory job registry. One active job per username at a
// time; completed rooms are kept for lookup until the process exits.
type jobStore struct {
	mu       sync.RWMutex
	byID     map[string]*Job
	byUser   map[string]string // username -> latest job ID
	finished map[string]string // username -> completed job ID
}

func newJobStore() *jobStore {
	return &jobStore{
		byID:     make(map[string]*Job),
		byUser:   make(map[string]string),
		finished: make(map[string]string),
	}
}

// acquire returns the job to report for a username. existing is true when an
// in-progress or completed job was found and no new work should start.
func (s *jobStore) acquire(username string) (job Job, existing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUser[username]; ok {
		j := s.byID[id]
		if j.Status == JobQueued || j.Status == JobRunning {
			return *j, true
		}
	}
	if id, ok := s.finished[username]; ok {
		return *s.byID[id], true
	}

	j := &Job{
		ID:       uuid.NewString(),
		Username: username,
		Status:   JobQueued,
	}
	s.byID[j.ID] = j
	s.byUser[username] = j.ID
	return *j, false
}

func (s *jobStore) get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// byUsername returns the completed job for a username, if any.
func (s *jobStore) byUsername(username string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.finished[username]
	if !ok {
		return Job{}, false
	}
	return *s.byID[id], true
}

func (s *jobStore) setRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok {
		j.Status = JobRunning
	}
}

func (s *jobStore) complete(id string, result *pipeline.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok {
		j.Status = JobCompleted
		j.Result = result
		s.finished[j.Username] = id
	}
}

func (s *jobStore) fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok {
		j.Status = JobFailed
		j.Error = err.Error()
	}
}
