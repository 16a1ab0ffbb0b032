package scheduler

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	ErrJobAlreadyExists = errors.New("scheduler: job already exists")
	ErrJobNotFound      = errors.New("scheduler: job not found")
)

// JobStore keeps jobs and their execution history.
type JobStore interface {
	AddJob(job Job) error
	UpdateJob(job Job) error
	GetJob(id string) (Job, error)
	Jobs() ([]Job, error)
	DeleteJob(id string) error

	// ClaimDueJobs marks pending jobs whose NextRun is not after now as running and
	// returns them.
	ClaimDueJobs(now time.Time) ([]Job, error)

	AddExecution(execution JobExecution) error
	Executions(jobID string) ([]JobExecution, error)

	// PruneExecutions drops executions that ended before cutoff.
	PruneExecutions(cutoff time.Time) int
}

type memoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]Job
	executions map[string][]JobExecution
}

// NewMemoryStore creates an in-process JobStore.
func NewMemoryStore() JobStore {
	return &memoryStore{
		jobs:       make(map[string]Job),
		executions: make(map[string][]JobExecution),
	}
}

func (s *memoryStore) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryStore) UpdateJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryStore) GetJob(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

func (s *memoryStore) Jobs() ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.SortedFunc(maps.Values(s.jobs), func(a, b Job) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	}), nil
}

func (s *memoryStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.jobs, id)
	delete(s.executions, id)
	return nil
}

func (s *memoryStore) ClaimDueJobs(now time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for id, job := range s.jobs {
		if job.Status == JobStatusPending && job.NextRun != nil && !job.NextRun.After(now) {
			job.Status = JobStatusRunning
			job.UpdatedAt = now
			s.jobs[id] = job
			due = append(due, job)
		}
	}
	slices.SortFunc(due, func(a, b Job) int { return a.NextRun.Compare(*b.NextRun) })
	return due, nil
}

func (s *memoryStore) AddExecution(execution JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[execution.JobID] = append(s.executions[execution.JobID], execution)
	return nil
}

func (s *memoryStore) Executions(jobID string) ([]JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.executions[jobID]), nil
}

func (s *memoryStore) PruneExecutions(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, list := range s.executions {
		kept := slices.DeleteFunc(list, func(e JobExecution) bool { return e.EndTime.Before(cutoff) })
		removed += len(list) - len(kept)
		s.executions[id] = kept
	}
	return removed
}
