package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuckyman/url-portal/internal/portal/domain"
	"github.com/yuckyman/url-portal/shared/logger"
)

type fakeBroker struct {
	routingKey  string
	body        []byte
	contentType string
	err         error
}

func (b *fakeBroker) PublishWithRetry(_ context.Context, routingKey string, body []byte, contentType string) error {
	b.routingKey, b.body, b.contentType = routingKey, body, contentType
	return b.err
}

func TestPublisher_JobFinished(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, "", logger.NewDiscard())
	emitted := time.Date(2026, 1, 2, 8, 0, 5, 0, time.UTC)
	p.now = func() time.Time { return emitted }

	rec := domain.JobStatusRecord{
		JobID:       "0f8e",
		DispatchKey: "dly",
		Action:      "open_daily",
		Status:      domain.JobStatusSucceeded,
		CreatedAt:   emitted.Add(-5 * time.Second),
		UpdatedAt:   emitted,
		Result:      map[string]any{"success": true},
	}
	require.NoError(t, p.JobFinished(context.Background(), rec))

	assert.Equal(t, "portal.job.succeeded", broker.routingKey)
	assert.Equal(t, "application/json", broker.contentType)

	var event JobEvent
	require.NoError(t, json.Unmarshal(broker.body, &event))
	assert.Equal(t, EventJobFinished, event.Type)
	assert.Equal(t, "0f8e", event.JobID)
	assert.Equal(t, "dly", event.DispatchKey)
	assert.Equal(t, true, event.Result["success"])
	assert.Equal(t, emitted, event.EmittedAt)
	assert.Empty(t, event.Error)
}

func TestPublisher_BrokerError(t *testing.T) {
	p := NewPublisher(&fakeBroker{err: errors.New("channel closed")}, "wm.jobs", logger.NewDiscard())

	err := p.JobFinished(context.Background(), domain.JobStatusRecord{JobID: "x", Status: domain.JobStatusFailed})
	assert.EqualError(t, err, "failed to publish job event: channel closed")
}
