package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"temple-quiz-service/internal/domain"
)

func TestPublishResultSubmittedOverChannel(t *testing.T) {
	pub, ch := NewChannelPublisher("", nil)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := ch.Subscribe(ctx, EventResultSubmitted)
	require.NoError(t, err)

	record := domain.ResultRecord{
		SessionID:   "s-1",
		ExamID:      7,
		UserID:      42,
		Marks:       80,
		Reason:      domain.SubmitTimeout,
		SubmittedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishResultSubmitted(ctx, record))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, EventResultSubmitted, msg.Metadata.Get("event_type"))
		assert.Equal(t, "s-1", msg.Metadata.Get("session_id"))

		var event ResultSubmitted
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, msg.UUID, event.ID)
		assert.Equal(t, 80, event.Result.Marks)
		assert.Equal(t, domain.SubmitTimeout, event.Result.Reason)
		assert.True(t, event.Timestamp.Equal(record.SubmittedAt))
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestNewPublisherWithoutBrokersStaysInProcess(t *testing.T) {
	pub, err := NewPublisher(Config{Topic: "results"}, nil)
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "results", pub.topic)
	assert.NoError(t, pub.PublishResultSubmitted(context.Background(), domain.ResultRecord{SessionID: "s-2"}))
}
