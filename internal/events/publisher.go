package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// EventJobFinished is the type of the event emitted for terminal jobs
const EventJobFinished = "job.finished"

// Broker is the subset of the RabbitMQ client the publisher needs
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// JobEvent is the JSON message published for a job
type JobEvent struct {
	Type        string         `json:"type"`
	JobID       string         `json:"job_id"`
	DispatchKey string         `json:"dispatch_key"`
	Action      string         `json:"action"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	EmittedAt   time.Time      `json:"emitted_at"`
}

// Publisher emits job lifecycle events. It is a worker observer.
type Publisher struct {
	broker      Broker
	routingBase string
	logger      *slog.Logger
	now         func() time.Time
}

// NewPublisher creates a Publisher. Events are routed as "<routingBase>.<status>".
func NewPublisher(broker Broker, routingBase string, logger *slog.Logger) *Publisher {
	if routingBase == "" {
		routingBase = "portal.job"
	}
	return &Publisher{
		broker:      broker,
		routingBase: routingBase,
		logger:      logger,
		now:         time.Now,
	}
}

// JobFinished publishes rec
func (p *Publisher) JobFinished(ctx context.Context, rec domain.JobStatusRecord) error {
	body, err := json.Marshal(JobEvent{
		Type:        EventJobFinished,
		JobID:       rec.JobID,
		DispatchKey: rec.DispatchKey,
		Action:      rec.Action,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Result:      rec.Result,
		Error:       rec.Error,
		EmittedAt:   p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	routingKey := p.routingBase + "." + rec.Status
	if err := p.broker.PublishWithRetry(ctx, routingKey, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	p.logger.Debug("Job event published",
		slog.String("job_id", rec.JobID),
		slog.String("routing_key", routingKey),
	)
	return nil
}
