package dispatch

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/metrics"
	"github.com/yuckyman/url-portal/internal/portal/domain"
	"github.com/yuckyman/url-portal/shared/clock"
)

// Trigger is one externally fired portal event
type Trigger struct {
	DispatchKey string
	Action      string
	Payload     map[string]any
	Timestamp   *int64
	Signature   string
}

// Options configures a Dispatcher
type Options struct {
	Secret      string
	ReplayTTL   time.Duration
	DedupWindow time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Dispatcher authenticates triggers and turns them into queued jobs, at most
// one per dispatch key within the dedup window.
type Dispatcher struct {
	verifier *SignatureVerifier
	dedup    *DedupIndex
	store    *jobstore.Store
	queue    *jobstore.Queue
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// NewDispatcher creates a Dispatcher writing to store and queue
func NewDispatcher(store *jobstore.Store, queue *jobstore.Queue, opts Options) *Dispatcher {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		verifier: NewSignatureVerifier(opts.Secret, opts.ReplayTTL, clk),
		dedup:    NewDedupIndex(opts.DedupWindow),
		store:    store,
		queue:    queue,
		clock:    clk,
		logger:   logger,
		metrics:  opts.Metrics,
		newID:    newJobID,
	}
}

// newJobID returns a random v4 uuid as 32 hex characters
func newJobID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ValidateKey checks that key is 2-24 characters of [a-z0-9]
func ValidateKey(key string) error {
	if len(key) < domain.MinKeyLength || len(key) > domain.MaxKeyLength {
		return errors.Wrapf(domain.ErrInvalidKey, "%q must be %d-%d characters", key, domain.MinKeyLength, domain.MaxKeyLength)
	}
	for _, c := range key {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return errors.Wrapf(domain.ErrInvalidKey, "%q must be lowercase alphanumeric", key)
		}
	}
	return nil
}

// SigningEnabled reports whether triggers must carry a signature
func (d *Dispatcher) SigningEnabled() bool {
	return d.verifier.Enabled()
}

// Sign mints the signature for key at timestamp; "" when signing is disabled
func (d *Dispatcher) Sign(key string, timestamp int64) string {
	return d.verifier.Sign(key, timestamp)
}

// Now returns the dispatcher's current time
func (d *Dispatcher) Now() time.Time {
	return d.clock.Now()
}

// Authenticate validates the key and then the signature. The verifier is not
// consulted for a malformed key. Verification failures are marked with
// domain.ErrUnauthorized and keep their specific reason.
func (d *Dispatcher) Authenticate(key string, timestamp *int64, signature string) error {
	if err := ValidateKey(key); err != nil {
		d.metrics.Trigger(metrics.OutcomeInvalidKey)
		return err
	}

	if err := d.verifier.Verify(key, timestamp, signature); err != nil {
		d.metrics.Trigger(metrics.OutcomeUnauthorized)
		d.logger.Warn("Trigger rejected",
			slog.String("dispatch_key", key),
			slog.String("reason", err.Error()),
		)
		return errors.Mark(err, domain.ErrUnauthorized)
	}

	return nil
}

// Dispatch authenticates t and either enqueues a new job or, when a job for the
// same key was accepted within the dedup window, returns that job's record
// tagged as deduped.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) (domain.JobStatusRecord, error) {
	if err := d.Authenticate(t.DispatchKey, t.Timestamp, t.Signature); err != nil {
		return domain.JobStatusRecord{}, err
	}
	return d.Enqueue(ctx, t)
}

// Enqueue is Dispatch for a trigger the caller has already authenticated.
func (d *Dispatcher) Enqueue(ctx context.Context, t Trigger) (domain.JobStatusRecord, error) {
	now := d.clock.Now()

	var created domain.JobStatusRecord
	outcome, err := d.dedup.AcceptOrDedup(t.DispatchKey, now, func() (string, error) {
		job := &domain.Job{
			JobID:       d.newID(),
			DispatchKey: t.DispatchKey,
			Action:      t.Action,
			Payload:     t.Payload,
			CreatedAt:   now,
		}

		rec := domain.NewQueuedRecord(job)
		if err := d.store.Insert(rec); err != nil {
			return "", err
		}
		d.queue.Push(job)

		created = rec
		return job.JobID, nil
	})
	if err != nil {
		return domain.JobStatusRecord{}, errors.Wrap(err, "failed to enqueue job")
	}

	if outcome.Deduped {
		rec, err := d.store.Get(outcome.JobID)
		if err != nil {
			return domain.JobStatusRecord{}, errors.Wrapf(err, "deduped trigger for %s", t.DispatchKey)
		}
		rec.Status = domain.JobStatusDeduped

		d.metrics.Trigger(metrics.OutcomeDeduped)
		d.logger.InfoContext(ctx, "Duplicate trigger ignored",
			slog.String("dispatch_key", t.DispatchKey),
			slog.String("job_id", rec.JobID),
		)
		return rec, nil
	}

	d.metrics.Trigger(metrics.OutcomeAccepted)
	d.logger.InfoContext(ctx, "Job enqueued",
		slog.String("dispatch_key", t.DispatchKey),
		slog.String("action", t.Action),
		slog.String("job_id", created.JobID),
	)
	return created, nil
}
