// Package subscriber implements the double-opt-in lifecycle: subscribe
// issues a verification token and email, verify activates within the
// token's 24-hour window, unsubscribe deactivates. Export and purge
// serve data-access and data-erasure requests.
package subscriber

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/email"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

var (
	// ErrInvalidEmail rejects syntactically bad addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidToken covers unknown, already-used, and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired means the verification window has closed; the
	// subscriber must request a fresh link by subscribing again.
	ErrTokenExpired = errors.New("verification token expired")
)

// TokenTTL is the verification window.
const TokenTTL = 24 * time.Hour

// SubscribeOutcome distinguishes the subscribe responses the API maps
// to status codes.
type SubscribeOutcome string

const (
	// OutcomePending covers both a brand-new subscription and a token
	// reissue for an existing pending or inactive subscriber.
	OutcomePending SubscribeOutcome = "pending"
	// OutcomeAlreadySubscribed is the idempotent response for an active
	// subscriber.
	OutcomeAlreadySubscribed SubscribeOutcome = "already_subscribed"
)

// SubscribeResult is what the API layer needs to shape its response.
type SubscribeResult struct {
	Outcome      SubscribeOutcome
	SubscriberID string
}

// Controller drives subscriber state transitions. All transitions go
// through conditional writes, so concurrent calls for the same email
// serialize: the loser re-reads and retries once.
type Controller struct {
	store    store.SubscriberStore
	sender   email.Sender
	from     string
	baseURL  string
	now      func() time.Time
	newToken func() (string, error)
	newID    func() string
}

// New creates a controller. baseURL is the public origin the
// verification and unsubscribe links point at.
func New(subs store.SubscriberStore, sender email.Sender, from, baseURL string) *Controller {
	return &Controller{
		store:    subs,
		sender:   sender,
		from:     from,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
		newToken: randomToken,
		newID:    uuid.NewString,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("subscriber: token entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NormalizeEmail validates and case-folds an address.
func NormalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

// Subscribe starts or restarts the opt-in flow for an email address.
func (c *Controller) Subscribe(ctx context.Context, rawEmail string) (*SubscribeResult, error) {
	addr, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	res, err := c.subscribeOnce(ctx, addr)
	if errors.Is(err, store.ErrConditionalFailed) {
		// Another writer won the race; re-read and retry once.
		res, err = c.subscribeOnce(ctx, addr)
	}
	return res, err
}

func (c *Controller) subscribeOnce(ctx context.Context, addr string) (*SubscribeResult, error) {
	existing, err := c.store.GetByEmail(ctx, addr)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.createPending(ctx, addr)
	case err != nil:
		return nil, err
	}

	switch existing.Status {
	case store.StatusActive:
		logger.Debug("subscriber: already active", "email", addr)
		return &SubscribeResult{Outcome: OutcomeAlreadySubscribed, SubscriberID: existing.ID}, nil
	case store.StatusPending, store.StatusInactive:
		return c.reissue(ctx, existing)
	default:
		return nil, fmt.Errorf("subscriber: unknown status %q", existing.Status)
	}
}

func (c *Controller) createPending(ctx context.Context, addr string) (*SubscribeResult, error) {
	token, err := c.newToken()
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	sub := &store.Subscriber{
		ID:                c.newID(),
		Email:             addr,
		Status:            store.StatusPending,
		VerificationToken: token,
		TokenExpiry:       now.Add(TokenTTL).Format(time.RFC3339),
		SubscribedAt:      now.Format(time.RFC3339),
		UpdatedAt:         now.Format(time.RFC3339),
	}
	if err := c.store.PutIfAbsent(ctx, sub); err != nil {
		return nil, err
	}
	if err := c.sendVerification(ctx, addr, token); err != nil {
		return nil, err
	}
	logger.Info("subscriber: created pending", "email", addr, "subscriber_id", sub.ID, "token", token)
	return &SubscribeResult{Outcome: OutcomePending, SubscriberID: sub.ID}, nil
}

// reissue restarts the verification window for a pending or inactive
// subscriber. Tokens are never reused: each call mints a fresh one.
func (c *Controller) reissue(ctx context.Context, sub *store.Subscriber) (*SubscribeResult, error) {
	token, err := c.newToken()
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()

	updated := *sub
	updated.Status = store.StatusPending
	updated.VerificationToken = token
	updated.TokenExpiry = now.Add(TokenTTL).Format(time.RFC3339)
	updated.VerifiedAt = ""
	updated.UpdatedAt = now.Format(time.RFC3339)

	if err := c.store.UpdateIfUnchanged(ctx, &updated, sub.UpdatedAt); err != nil {
		return nil, err
	}
	if err := c.sendVerification(ctx, updated.Email, token); err != nil {
		return nil, err
	}
	logger.Info("subscriber: verification reissued", "email", updated.Email, "subscriber_id", updated.ID, "token", token)
	return &SubscribeResult{Outcome: OutcomePending, SubscriberID: updated.ID}, nil
}

// Verify activates a pending subscriber if the token is known and the
// expiry wall has not passed. The token and expiry are cleared on
// success so a token can never be replayed.
func (c *Controller) Verify(ctx context.Context, token string) (*store.Subscriber, error) {
	sub, err := c.verifyOnce(ctx, token)
	if errors.Is(err, store.ErrConditionalFailed) {
		sub, err = c.verifyOnce(ctx, token)
	}
	return sub, err
}

func (c *Controller) verifyOnce(ctx context.Context, token string) (*store.Subscriber, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	sub, err := c.store.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if sub.Status != store.StatusPending {
		return nil, ErrInvalidToken
	}

	expiry, err := time.Parse(time.RFC3339, sub.TokenExpiry)
	if err != nil || c.now().After(expiry) {
		return nil, ErrTokenExpired
	}

	now := c.now().UTC()
	updated := *sub
	updated.Status = store.StatusActive
	updated.VerificationToken = ""
	updated.TokenExpiry = ""
	updated.VerifiedAt = now.Format(time.RFC3339)
	updated.UpdatedAt = now.Format(time.RFC3339)

	if err := c.store.UpdateIfUnchanged(ctx, &updated, sub.UpdatedAt); err != nil {
		return nil, err
	}
	logger.Info("subscriber: verified", "email", updated.Email, "subscriber_id", updated.ID)
	return &updated, nil
}

// Unsubscribe deactivates a subscriber. The token is the subscriber's
// opaque ID, carried in every digest's unsubscribe link. Idempotent.
func (c *Controller) Unsubscribe(ctx context.Context, token string) error {
	err := c.unsubscribeOnce(ctx, token)
	if errors.Is(err, store.ErrConditionalFailed) {
		err = c.unsubscribeOnce(ctx, token)
	}
	return err
}

func (c *Controller) unsubscribeOnce(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	sub, err := c.store.Get(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if sub.Status == store.StatusInactive {
		return nil
	}

	now := c.now().UTC()
	updated := *sub
	updated.Status = store.StatusInactive
	updated.VerificationToken = ""
	updated.TokenExpiry = ""
	updated.UpdatedAt = now.Format(time.RFC3339)

	if err := c.store.UpdateIfUnchanged(ctx, &updated, sub.UpdatedAt); err != nil {
		return err
	}
	logger.Info("subscriber: unsubscribed", "email", updated.Email, "subscriber_id", updated.ID)
	return nil
}

// Deactivate flips a subscriber inactive by email, used when the mail
// provider reports a bounce or complaint.
func (c *Controller) Deactivate(ctx context.Context, rawEmail string) error {
	addr, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	sub, err := c.store.GetByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Unsubscribe(ctx, sub.ID)
}

// Export returns the stored record for a data-access request.
func (c *Controller) Export(ctx context.Context, rawEmail string) (*store.Subscriber, error) {
	addr, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	return c.store.GetByEmail(ctx, addr)
}

// Purge deletes the record for a data-erasure request. Unknown
// addresses succeed silently.
func (c *Controller) Purge(ctx context.Context, rawEmail string) error {
	addr, err := NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	sub, err := c.store.GetByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, sub.ID); err != nil {
		return err
	}
	logger.Info("subscriber: purged", "email", addr, "subscriber_id", sub.ID)
	return nil
}

// ListActive returns the active subscribers for distribution.
func (c *Controller) ListActive(ctx context.Context) ([]*store.Subscriber, error) {
	return c.store.ListByStatus(ctx, store.StatusActive)
}

// VerifyURL builds the link embedded in verification emails.
func (c *Controller) VerifyURL(token string) string {
	return fmt.Sprintf("%s/verify?token=%s", c.baseURL, token)
}

// UnsubscribeURL builds the per-recipient link embedded in digests.
func (c *Controller) UnsubscribeURL(subscriberID string) string {
	return fmt.Sprintf("%s/unsubscribe?token=%s", c.baseURL, subscriberID)
}

func (c *Controller) sendVerification(ctx context.Context, addr, token string) error {
	link := c.VerifyURL(token)
	htmlBody := fmt.Sprintf(`<p>Confirm your subscription to the GenAI Weekly Digest:</p>
<p><a href="%s">Verify my email</a></p>
<p>The link expires in 24 hours. If you did not request this, ignore this email.</p>`, link)
	textBody := fmt.Sprintf("Confirm your subscription to the GenAI Weekly Digest:\n\n%s\n\nThe link expires in 24 hours. If you did not request this, ignore this email.", link)

	_, err := c.sender.Send(ctx, c.from, addr, "Confirm your subscription", htmlBody, textBody)
	if err != nil {
		return fmt.Errorf("subscriber: verification email: %w", err)
	}
	return nil
}
