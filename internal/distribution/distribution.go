package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/digest"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/email"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/subscriber"
)

const (
	// notificationMaxAge bounds how far back drained bounce/complaint
	// events are honored.
	notificationMaxAge = 7 * 24 * time.Hour
	defaultMaxRetries  = 2
	retryBackoff       = 2 * time.Second
)

// Report is the per-run distribution outcome recorded in the manifest.
type Report struct {
	Attempted   int
	Sent        int
	Bounced     int
	Failed      int
	Deactivated int
	// Failures maps subscriber ID to the failure description.
	Failures map[string]string
}

// Controller sends a digest to every active subscriber.
type Controller struct {
	subscribers   *subscriber.Controller
	sender        email.Sender
	notifications email.NotificationSource
	limiter       Limiter
	renderer      *digest.Renderer
	from          string
	maxRetries    int
	sleep         func(time.Duration)
}

// New creates a distribution controller. notifications and limiter may
// be nil (no drain, no cap); maxRetries ≤ 0 selects the default of 2.
func New(subs *subscriber.Controller, sender email.Sender, notifications email.NotificationSource, limiter Limiter, from string, maxRetries int) *Controller {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Controller{
		subscribers:   subs,
		sender:        sender,
		notifications: notifications,
		limiter:       limiter,
		renderer:      digest.NewRenderer(),
		from:          from,
		maxRetries:    maxRetries,
		sleep:         time.Sleep,
	}
}

// Distribute sends the digest to all active subscribers. Per-recipient
// failures are recorded and the loop continues; only an empty
// recipient list or a render failure aborts.
func (c *Controller) Distribute(ctx context.Context, d *digest.Digest) (*Report, error) {
	report := &Report{Failures: make(map[string]string)}

	if err := c.drainNotifications(ctx, report); err != nil {
		logger.Warn("distribution: notification drain failed, continuing", "error", err)
	}

	subs, err := c.subscribers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("distribution: list subscribers: %w", err)
	}
	if len(subs) == 0 {
		logger.Info("distribution: no active subscribers, nothing to send")
		return report, nil
	}

	_, weekEnd := d.WeekWindow()
	subject := fmt.Sprintf("Your GenAI Weekly Digest (%s)", weekEnd.Format("Jan 2, 2006"))

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++

		unsubURL := c.subscribers.UnsubscribeURL(sub.ID)
		htmlBody, err := c.renderer.HTML(d, unsubURL)
		if err != nil {
			return report, fmt.Errorf("distribution: render html: %w", err)
		}
		textBody, err := c.renderer.Text(d, unsubURL)
		if err != nil {
			return report, fmt.Errorf("distribution: render text: %w", err)
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return report, err
		}

		switch err := c.sendWithRetry(ctx, sub.Email, subject, htmlBody, textBody); {
		case err == nil:
			report.Sent++
		case errors.Is(err, email.ErrPermanentRecipient):
			report.Bounced++
			report.Failures[sub.ID] = "permanent recipient failure"
			if derr := c.subscribers.Unsubscribe(ctx, sub.ID); derr != nil {
				logger.Warn("distribution: deactivation failed",
					"subscriber_id", sub.ID, "error", derr)
			} else {
				report.Deactivated++
			}
		default:
			report.Failed++
			report.Failures[sub.ID] = err.Error()
			logger.Warn("distribution: send failed",
				"subscriber_id", sub.ID, "recipient", sub.Email, "error", err)
		}
	}

	logger.Info("distribution: complete",
		"attempted", report.Attempted,
		"sent", report.Sent,
		"bounced", report.Bounced,
		"failed", report.Failed)
	return report, nil
}

func (c *Controller) sendWithRetry(ctx context.Context, to, subject, htmlBody, textBody string) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(retryBackoff * time.Duration(attempt))
		}
		_, err := c.sender.Send(ctx, c.from, to, subject, htmlBody, textBody)
		if err == nil {
			return nil
		}
		if errors.Is(err, email.ErrPermanentRecipient) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// drainNotifications flips bounced and complaining subscribers
// inactive before any send goes out.
func (c *Controller) drainNotifications(ctx context.Context, report *Report) error {
	if c.notifications == nil {
		return nil
	}
	events, err := c.notifications.Drain(ctx, notificationMaxAge)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := c.subscribers.Deactivate(ctx, ev.Email); err != nil {
			logger.Warn("distribution: deactivation from notification failed",
				"kind", ev.Kind, "recipient", ev.Email, "error", err)
			continue
		}
		report.Deactivated++
		logger.Info("distribution: subscriber deactivated from notification",
			"kind", ev.Kind, "recipient", ev.Email)
	}
	return nil
}
