// Package store provides the persistence capabilities for the digest
// pipeline: an S3-backed object store for run artifacts and a set of
// typed DynamoDB tables for subscribers, classifications, and run
// manifests. In-memory implementations back the test suite.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConditionalFailed is returned when a conditional write loses a
	// race. Callers treat it as "another writer won", not as corruption.
	ErrConditionalFailed = errors.New("conditional write failed")
)

// ObjectStore is a blob store keyed by string. Writes are atomic at
// the key granularity.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// SubscriberStatus enumerates the double-opt-in states.
type SubscriberStatus string

const (
	StatusPending  SubscriberStatus = "pending_verification"
	StatusActive   SubscriberStatus = "active"
	StatusInactive SubscriberStatus = "inactive"
)

// Subscriber is a row in the subscribers table. Token and expiry are
// present only while the subscriber is pending; verified-at only once
// active.
type Subscriber struct {
	ID                string           `dynamodbav:"subscriber_id" json:"subscriber_id"`
	Email             string           `dynamodbav:"email" json:"email"`
	Status            SubscriberStatus `dynamodbav:"status" json:"status"`
	VerificationToken string           `dynamodbav:"verification_token,omitempty" json:"verification_token,omitempty"`
	TokenExpiry       string           `dynamodbav:"token_expiry,omitempty" json:"token_expiry,omitempty"`
	VerifiedAt        string           `dynamodbav:"verified_at,omitempty" json:"verified_at,omitempty"`
	SubscribedAt      string           `dynamodbav:"subscribed_at" json:"subscribed_at"`
	UpdatedAt         string           `dynamodbav:"updated_at" json:"updated_at"`
}

// SubscriberStore is the subscribers table. GetByEmail uses the
// email-index GSI; GetByToken uses the sparse token-index GSI.
type SubscriberStore interface {
	PutIfAbsent(ctx context.Context, sub *Subscriber) error
	// UpdateIfUnchanged writes sub only if the stored row still carries
	// prevUpdatedAt, serializing concurrent transitions per subscriber.
	UpdateIfUnchanged(ctx context.Context, sub *Subscriber, prevUpdatedAt string) error
	Get(ctx context.Context, id string) (*Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)
	GetByToken(ctx context.Context, token string) (*Subscriber, error)
	ListByStatus(ctx context.Context, status SubscriberStatus) ([]*Subscriber, error)
	Delete(ctx context.Context, id string) error
}

// ClassificationRecord is a row in the classifications table, keyed by
// (tweet_id, classifier_version). Written exactly once, expired by TTL.
type ClassificationRecord struct {
	TweetID           string   `dynamodbav:"tweet_id" json:"tweet_id"`
	ClassifierVersion string   `dynamodbav:"classifier_version" json:"classifier_version"`
	L1                string   `dynamodbav:"l1" json:"l1"`
	L2                []string `dynamodbav:"l2" json:"l2"`
	L1Confidence      float64  `dynamodbav:"l1_confidence" json:"l1_confidence"`
	L2Confidence      float64  `dynamodbav:"l2_confidence" json:"l2_confidence"`
	ProcessedAt       string   `dynamodbav:"processed_at" json:"processed_at"`
	ExpiresAt         int64    `dynamodbav:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// ClassificationTTL is how long classification rows live before
// DynamoDB expires them.
const ClassificationTTL = 8 * 7 * 24 * time.Hour

// ClassificationStore is the classifications table.
type ClassificationStore interface {
	// PutIfAbsent writes the record unless one already exists for the
	// same (tweet_id, classifier_version). A duplicate returns
	// ErrConditionalFailed and is not an error for callers implementing
	// at-least-once processing.
	PutIfAbsent(ctx context.Context, rec *ClassificationRecord) error
	Get(ctx context.Context, tweetID, version string) (*ClassificationRecord, error)
	// GetBatch returns the records that exist for the given tweet IDs
	// under one classifier version; missing IDs are simply absent.
	GetBatch(ctx context.Context, tweetIDs []string, version string) (map[string]*ClassificationRecord, error)
	// QueryByL1 reads the l1-index GSI.
	QueryByL1(ctx context.Context, l1 string) ([]*ClassificationRecord, error)
}

// StageRecord is one stage's outcome inside a run manifest row.
type StageRecord struct {
	Name   string `dynamodbav:"name" json:"name"`
	Status string `dynamodbav:"status" json:"status"`
	Error  string `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

// RunRecord is a row in the runs table, retained indefinitely for
// audit.
type RunRecord struct {
	RunID       string         `dynamodbav:"run_id" json:"run_id"`
	Trigger     string         `dynamodbav:"trigger" json:"trigger"`
	Mode        string         `dynamodbav:"mode" json:"mode"`
	Status      string         `dynamodbav:"status" json:"status"`
	StartedAt   string         `dynamodbav:"started_at" json:"started_at"`
	CompletedAt string         `dynamodbav:"completed_at,omitempty" json:"completed_at,omitempty"`
	DigestKey   string         `dynamodbav:"digest_key,omitempty" json:"digest_key,omitempty"`
	FailedStage string         `dynamodbav:"failed_stage,omitempty" json:"failed_stage,omitempty"`
	Stages      []StageRecord  `dynamodbav:"stages" json:"stages"`
	Counts      map[string]int `dynamodbav:"counts" json:"counts"`
}

// RunStore is the runs table.
type RunStore interface {
	Put(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, runID string) (*RunRecord, error)
}
