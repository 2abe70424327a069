package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and single-node development
// runs. Records honor the configured TTL.
type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration

	records map[string]memoryRecord // userID:sessionID -> record
}

type memoryRecord struct {
	payload   Record
	expiresAt time.Time
}

// NewMemory creates an in-memory store with the given record TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, records: make(map[string]memoryRecord)}
}

func memKey(userID, sessionID string) string { return userID + ":" + sessionID }

func (m *Memory) Open(ctx context.Context, userID string, payload Record) (string, error) {
	sessionID := uuid.NewString()

	copied := make(Record, len(payload))
	for k, v := range payload {
		copied[k] = v
	}

	m.mu.Lock()
	m.records[memKey(userID, sessionID)] = memoryRecord{payload: copied, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return sessionID, nil
}

func (m *Memory) Get(ctx context.Context, userID, sessionID string) (Record, error) {
	m.mu.RLock()
	rec, ok := m.records[memKey(userID, sessionID)]
	m.mu.RUnlock()
	if !ok || time.Now().After(rec.expiresAt) {
		return nil, nil
	}
	return rec.payload, nil
}

func (m *Memory) Delete(ctx context.Context, userID, sessionID string) error {
	m.mu.Lock()
	delete(m.records, memKey(userID, sessionID))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Count(ctx context.Context, userID string) (int, error) {
	prefix := userID + ":"
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for key, rec := range m.records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && now.Before(rec.expiresAt) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SetField(ctx context.Context, userID, sessionID, field string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memKey(userID, sessionID)]
	if !ok {
		return nil
	}
	rec.payload[field] = value
	m.records[memKey(userID, sessionID)] = rec
	return nil
}

func (m *Memory) FindByUser(ctx context.Context, userID string) (Record, error) {
	prefix := userID + ":"
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, rec := range m.records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && now.Before(rec.expiresAt) {
			return rec.payload, nil
		}
	}
	return nil, nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*Redis)(nil)
