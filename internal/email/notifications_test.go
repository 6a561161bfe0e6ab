package email

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
)

func bounceEvent(email string, at time.Time) string {
	return fmt.Sprintf(`{"eventType":"Bounce","bounce":{"timestamp":%q,"bouncedRecipients":[{"emailAddress":%q}]}}`,
		at.Format(time.RFC3339), email)
}

func complaintEvent(email string, at time.Time) string {
	return fmt.Sprintf(`{"eventType":"Complaint","complaint":{"timestamp":%q,"complainedRecipients":[{"emailAddress":%q}]}}`,
		at.Format(time.RFC3339), email)
}

func TestDrainCollectsBouncesAndComplaints(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemQueue()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Send(ctx, bounceEvent("bounced@x.com", now.Add(-time.Hour)), ""))
	require.NoError(t, q.Send(ctx, complaintEvent("angry@x.com", now.Add(-2*time.Hour)), ""))

	n := NewNotifications(q)
	n.now = func() time.Time { return now }

	notes, err := n.Drain(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "bounce", notes[0].Kind)
	assert.Equal(t, "bounced@x.com", notes[0].Email)
	assert.Equal(t, "complaint", notes[1].Kind)

	// Drained messages are consumed.
	depth, _ := q.Depth(ctx)
	assert.Zero(t, depth)
}

func TestDrainDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemQueue()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Send(ctx, bounceEvent("old@x.com", now.Add(-10*24*time.Hour)), ""))
	require.NoError(t, q.Send(ctx, bounceEvent("fresh@x.com", now.Add(-time.Hour)), ""))

	n := NewNotifications(q)
	n.now = func() time.Time { return now }

	notes, err := n.Drain(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "fresh@x.com", notes[0].Email)
}

func TestDrainUnwrapsSNSEnvelope(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemQueue()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	inner := bounceEvent("wrapped@x.com", now.Add(-time.Hour))
	envelope := fmt.Sprintf(`{"Type":"Notification","Message":%q}`, inner)
	require.NoError(t, q.Send(ctx, envelope, ""))

	n := NewNotifications(q)
	n.now = func() time.Time { return now }

	notes, err := n.Drain(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "wrapped@x.com", notes[0].Email)
}

func TestDrainIgnoresUnparseableMessages(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemQueue()
	require.NoError(t, q.Send(ctx, "not json", ""))

	notes, err := NewNotifications(q).Drain(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestFakeSender(t *testing.T) {
	f := NewFakeSender()
	f.FailWith["bad@x.com"] = ErrPermanentRecipient

	res, err := f.Send(context.Background(), "from@x.com", "good@x.com", "s", "<p>h</p>", "h")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, res.Status)
	assert.NotEmpty(t, res.DeliveryID)

	_, err = f.Send(context.Background(), "from@x.com", "bad@x.com", "s", "<p>h</p>", "h")
	assert.ErrorIs(t, err, ErrPermanentRecipient)
	assert.Equal(t, []string{"good@x.com"}, f.Sent)
}
