package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemQueueSendReceiveAck(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()

	require.NoError(t, q.Send(ctx, `{"artifact_key":"runs/r1/artifacts/t1.json"}`, ""))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	msgs, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	// Invisible while leased.
	again, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Ack(ctx, msgs[0]))
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestMemQueueDedup(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()

	require.NoError(t, q.Send(ctx, "body", "t1"))
	require.NoError(t, q.Send(ctx, "body", "t1"))

	depth, _ := q.Depth(ctx)
	assert.Equal(t, 1, depth)
}

func TestMemQueueVisibilityExpiry(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()
	now := time.Unix(1000, 0)
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Send(ctx, "body", ""))
	msgs, err := q.Receive(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	now = now.Add(31 * time.Second)
	msgs, err = q.Receive(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].ReceiveCount)
}

func TestMemQueueNackReappears(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()
	now := time.Unix(1000, 0)
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Send(ctx, "body", ""))
	msgs, err := q.Receive(ctx, 10, time.Hour)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.Nack(ctx, msgs[0], 10*time.Second))

	now = now.Add(11 * time.Second)
	msgs, err = q.Receive(ctx, 10, time.Hour)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemQueueDeadLetterAfterMaxReceives(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()
	q.MaxReceives = 5
	now := time.Unix(1000, 0)
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Send(ctx, "poison", ""))

	for i := 0; i < 5; i++ {
		msgs, err := q.Receive(ctx, 10, time.Second)
		require.NoError(t, err)
		require.Len(t, msgs, 1, "delivery %d", i+1)
		require.NoError(t, q.Nack(ctx, msgs[0], 0))
		now = now.Add(time.Second)
	}

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.Len(t, q.DeadLetters, 1)
	assert.Equal(t, "poison", q.DeadLetters[0].Body)
}

func TestIsFIFO(t *testing.T) {
	assert.True(t, isFIFO("https://sqs.us-east-1.amazonaws.com/1/classify.fifo"))
	assert.False(t, isFIFO("https://sqs.us-east-1.amazonaws.com/1/classify"))
}
