package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// processJob claims a queued job, runs its action and records the outcome
func (w *Worker) processJob(ctx context.Context, workerName string, job *domain.Job) {
	started := w.clock.Now()

	// Step 1: queued -> in_progress
	if _, err := w.store.MarkInProgress(job.JobID, started); err != nil {
		w.logger.Error("Failed to claim job",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return
	}
	w.metrics.JobStarted()

	w.logger.Info("Processing job",
		slog.String("worker_name", workerName),
		slog.String("job_id", job.JobID),
		slog.String("dispatch_key", job.DispatchKey),
		slog.String("action", job.Action),
	)

	// Step 2: run the action; cancellation of the pool does not interrupt it
	result, execErr := w.executeJob(ctx, job)

	// Step 3: in_progress -> succeeded | failed
	finished := w.clock.Now()
	var (
		rec       domain.JobStatusRecord
		updateErr error
	)
	if execErr != nil {
		w.logger.Warn("Job execution failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.JobID),
			slog.String("action", job.Action),
			slog.String("error", execErr.Error()),
		)
		rec, updateErr = w.store.MarkFailed(job.JobID, execErr.Error(), finished)
	} else {
		w.logger.Info("Job completed successfully",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.JobID),
			slog.String("action", job.Action),
		)
		rec, updateErr = w.store.MarkSucceeded(job.JobID, result, finished)
	}

	if updateErr != nil {
		w.logger.Error("Failed to update job status",
			slog.String("job_id", job.JobID),
			slog.String("error", updateErr.Error()),
		)
		return
	}

	w.metrics.JobFinished(job.Action, rec.Status, finished.Sub(started))
	w.notifyObservers(ctx, rec)
}

// executeJob runs the executor on a context detached from pool shutdown.
// Errors, panics and unsuccessful results all come back as errors.
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) (result map[string]any, err error) {
	execCtx := context.WithoutCancel(ctx)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, w.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.Mark(errors.Newf("action %s panicked: %v", job.Action, r), domain.ErrActionFailure)
		}
	}()

	result, err = w.executor.Execute(execCtx, job.Action, job.Payload)
	if err != nil {
		return nil, err
	}

	if ok, _ := result["success"].(bool); !ok {
		return nil, errors.Mark(errors.New(failureText(result)), domain.ErrActionFailure)
	}

	return result, nil
}

// failureText describes an unsuccessful result using its error and message entries
func failureText(result map[string]any) string {
	errText, _ := result["error"].(string)
	msg, _ := result["message"].(string)

	switch {
	case errText != "" && msg != "" && errText != msg:
		return fmt.Sprintf("%s: %s", errText, msg)
	case errText != "":
		return errText
	case msg != "":
		return msg
	default:
		return "action reported failure"
	}
}

// notifyObservers hands the terminal record to every observer. Observer errors
// and panics are logged and never change the job status.
func (w *Worker) notifyObservers(ctx context.Context, rec domain.JobStatusRecord) {
	for _, obs := range w.observers {
		if err := w.notifyObserver(ctx, obs, rec); err != nil {
			w.logger.Warn("Job observer failed",
				slog.String("job_id", rec.JobID),
				slog.String("observer", fmt.Sprintf("%T", obs)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Worker) notifyObserver(ctx context.Context, obs Observer, rec domain.JobStatusRecord) (err error) {
	obsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.observerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("observer panicked: %v", r)
		}
	}()

	return obs.JobFinished(obsCtx, rec)
}
