package jobstore

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// Store keeps job status records in memory and enforces the job state machine:
// queued -> in_progress -> succeeded | failed. Terminal records never change.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.JobStatusRecord
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.JobStatusRecord),
	}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	DispatchKey string
	Status      string
	PageSize    int
	Cursor      *Cursor
}

// Cursor marks the last record of a previous page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// Insert stores the initial record of a new job
func (s *Store) Insert(rec domain.JobStatusRecord) error {
	if rec.Status != domain.JobStatusQueued {
		return errors.Wrapf(domain.ErrInvalidTransition, "job %s must start queued, got %s", rec.JobID, rec.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.JobID]; exists {
		return errors.Newf("job %s already exists", rec.JobID)
	}

	stored := rec.Clone()
	s.records[rec.JobID] = &stored
	return nil
}

// Get returns a copy of the record for jobID
func (s *Store) Get(jobID string) (domain.JobStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[jobID]
	if !ok {
		return domain.JobStatusRecord{}, errors.Wrapf(domain.ErrJobNotFound, "job %s", jobID)
	}
	return rec.Clone(), nil
}

// MarkInProgress moves a queued job to in_progress
func (s *Store) MarkInProgress(jobID string, now time.Time) (domain.JobStatusRecord, error) {
	return s.transition(jobID, domain.JobStatusQueued, domain.JobStatusInProgress, now, nil)
}

// MarkSucceeded moves an in-progress job to succeeded and attaches its result
func (s *Store) MarkSucceeded(jobID string, result map[string]any, now time.Time) (domain.JobStatusRecord, error) {
	return s.transition(jobID, domain.JobStatusInProgress, domain.JobStatusSucceeded, now, func(rec *domain.JobStatusRecord) {
		rec.Result = maps.Clone(result)
	})
}

// MarkFailed moves an in-progress job to failed with a description of the failure
func (s *Store) MarkFailed(jobID, errMsg string, now time.Time) (domain.JobStatusRecord, error) {
	return s.transition(jobID, domain.JobStatusInProgress, domain.JobStatusFailed, now, func(rec *domain.JobStatusRecord) {
		rec.Error = errMsg
	})
}

func (s *Store) transition(jobID, from, to string, now time.Time, apply func(*domain.JobStatusRecord)) (domain.JobStatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobID]
	if !ok {
		return domain.JobStatusRecord{}, errors.Wrapf(domain.ErrJobNotFound, "job %s", jobID)
	}

	if rec.Status != from {
		return rec.Clone(), errors.Wrapf(domain.ErrInvalidTransition, "job %s: %s -> %s", jobID, rec.Status, to)
	}

	rec.Status = to
	rec.UpdatedAt = now
	if apply != nil {
		apply(rec)
	}
	return rec.Clone(), nil
}

// List returns records newest first. When PageSize is positive at most
// PageSize+1 records are returned so callers can tell whether another page exists.
func (s *Store) List(filter Filter) []domain.JobStatusRecord {
	s.mu.RLock()
	out := make([]domain.JobStatusRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.DispatchKey != "" && rec.DispatchKey != filter.DispatchKey {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !before(rec, filter.Cursor) {
			continue
		}
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].JobID > out[j].JobID
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out
}

// before reports whether rec sorts after the cursor in newest-first order.
func before(rec *domain.JobStatusRecord, c *Cursor) bool {
	if rec.CreatedAt.Equal(c.CreatedAt) {
		return rec.JobID < c.JobID
	}
	return rec.CreatedAt.Before(c.CreatedAt)
}

// CountByStatus returns the number of records currently in status
func (s *Store) CountByStatus(status string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.Status == status {
			n++
		}
	}
	return n
}

// EvictTerminal drops succeeded and failed records last updated before cutoff
// and returns how many were removed. Queued and in-progress records are kept.
func (s *Store) EvictTerminal(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if rec.IsTerminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n
}
