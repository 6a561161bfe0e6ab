package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemObjectStore is an in-memory ObjectStore for tests.
type MemObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemObjectStore creates an empty in-memory object store.
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{objects: make(map[string][]byte)}
}

// Put implements ObjectStore.
func (m *MemObjectStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = buf
	return nil
}

// Get implements ObjectStore.
func (m *MemObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return body, nil
}

// Delete implements ObjectStore.
func (m *MemObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// List implements ObjectStore; keys are returned sorted for stable
// tests.
func (m *MemObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// MemSubscriberStore is an in-memory SubscriberStore for tests.
type MemSubscriberStore struct {
	mu   sync.Mutex
	rows map[string]*Subscriber
}

// NewMemSubscriberStore creates an empty in-memory subscriber store.
func NewMemSubscriberStore() *MemSubscriberStore {
	return &MemSubscriberStore{rows: make(map[string]*Subscriber)}
}

func copySub(sub *Subscriber) *Subscriber {
	c := *sub
	return &c
}

// PutIfAbsent implements SubscriberStore. The email acts as a
// uniqueness key alongside the ID, mirroring the transactional guard
// the DynamoDB store writes: two racing creates for one address leave
// exactly one row.
func (m *MemSubscriberStore) PutIfAbsent(_ context.Context, sub *Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[sub.ID]; ok {
		return ErrConditionalFailed
	}
	for _, existing := range m.rows {
		if existing.Email == sub.Email {
			return ErrConditionalFailed
		}
	}
	m.rows[sub.ID] = copySub(sub)
	return nil
}

// UpdateIfUnchanged implements SubscriberStore.
func (m *MemSubscriberStore) UpdateIfUnchanged(_ context.Context, sub *Subscriber, prevUpdatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[sub.ID]
	if !ok || existing.UpdatedAt != prevUpdatedAt {
		return ErrConditionalFailed
	}
	m.rows[sub.ID] = copySub(sub)
	return nil
}

// Get implements SubscriberStore.
func (m *MemSubscriberStore) Get(_ context.Context, id string) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySub(sub), nil
}

// GetByEmail implements SubscriberStore; non-inactive rows win.
func (m *MemSubscriberStore) GetByEmail(_ context.Context, email string) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inactive *Subscriber
	for _, sub := range m.rows {
		if sub.Email != email {
			continue
		}
		if sub.Status != StatusInactive {
			return copySub(sub), nil
		}
		inactive = sub
	}
	if inactive != nil {
		return copySub(inactive), nil
	}
	return nil, ErrNotFound
}

// GetByToken implements SubscriberStore.
func (m *MemSubscriberStore) GetByToken(_ context.Context, token string) (*Subscriber, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.rows {
		if sub.VerificationToken == token {
			return copySub(sub), nil
		}
	}
	return nil, ErrNotFound
}

// ListByStatus implements SubscriberStore; rows come back ordered by
// subscriber ID for stable iteration.
func (m *MemSubscriberStore) ListByStatus(_ context.Context, status SubscriberStatus) ([]*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []*Subscriber
	for _, sub := range m.rows {
		if sub.Status == status {
			subs = append(subs, copySub(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

// Delete implements SubscriberStore.
func (m *MemSubscriberStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// MemClassificationStore is an in-memory ClassificationStore for tests.
type MemClassificationStore struct {
	mu   sync.Mutex
	rows map[string]*ClassificationRecord
}

// NewMemClassificationStore creates an empty in-memory classification
// store.
func NewMemClassificationStore() *MemClassificationStore {
	return &MemClassificationStore{rows: make(map[string]*ClassificationRecord)}
}

func classKey(tweetID, version string) string {
	return tweetID + "#" + version
}

func copyRec(rec *ClassificationRecord) *ClassificationRecord {
	c := *rec
	c.L2 = append([]string(nil), rec.L2...)
	return &c
}

// PutIfAbsent implements ClassificationStore.
func (m *MemClassificationStore) PutIfAbsent(_ context.Context, rec *ClassificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := classKey(rec.TweetID, rec.ClassifierVersion)
	if _, ok := m.rows[key]; ok {
		return ErrConditionalFailed
	}
	m.rows[key] = copyRec(rec)
	return nil
}

// Get implements ClassificationStore.
func (m *MemClassificationStore) Get(_ context.Context, tweetID, version string) (*ClassificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[classKey(tweetID, version)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRec(rec), nil
}

// GetBatch implements ClassificationStore.
func (m *MemClassificationStore) GetBatch(_ context.Context, tweetIDs []string, version string) (map[string]*ClassificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*ClassificationRecord)
	for _, id := range tweetIDs {
		if rec, ok := m.rows[classKey(id, version)]; ok {
			result[id] = copyRec(rec)
		}
	}
	return result, nil
}

// QueryByL1 implements ClassificationStore.
func (m *MemClassificationStore) QueryByL1(_ context.Context, l1 string) ([]*ClassificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []*ClassificationRecord
	for _, rec := range m.rows {
		if rec.L1 == l1 {
			recs = append(recs, copyRec(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].TweetID < recs[j].TweetID })
	return recs, nil
}

// MemRunStore is an in-memory RunStore for tests.
type MemRunStore struct {
	mu   sync.Mutex
	rows map[string]*RunRecord
}

// NewMemRunStore creates an empty in-memory run store.
func NewMemRunStore() *MemRunStore {
	return &MemRunStore{rows: make(map[string]*RunRecord)}
}

// Put implements RunStore.
func (m *MemRunStore) Put(_ context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	c.Stages = append([]StageRecord(nil), rec.Stages...)
	c.Counts = make(map[string]int, len(rec.Counts))
	for k, v := range rec.Counts {
		c.Counts[k] = v
	}
	m.rows[rec.RunID] = &c
	return nil
}

// Get implements RunStore.
func (m *MemRunStore) Get(_ context.Context, runID string) (*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[runID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}
