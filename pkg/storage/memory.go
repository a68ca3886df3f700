package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heatlink/heatlink/pkg/types"
)

// Memory is an in-memory Database used for tests and local development.
type Memory struct {
	mu            sync.Mutex
	calls         []types.CallRecord
	notifications []types.Notification
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InsertCall(ctx context.Context, record types.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, record)
	return nil
}

func (m *Memory) GetCallHistory(ctx context.Context, start, end time.Time) ([]types.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []types.CallRecord
	for _, r := range m.calls {
		if r.Timestamp.Before(start) || !r.Timestamp.Before(end) {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

func (m *Memory) CreateNotification(ctx context.Context, n types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(ctx context.Context, since time.Time) ([]types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var notifications []types.Notification
	for _, n := range m.notifications {
		if n.CreatedAt.Before(since) {
			continue
		}
		notifications = append(notifications, n)
	}
	// newest first, matching the firestore provider
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

func (m *Memory) Close() error {
	return nil
}
