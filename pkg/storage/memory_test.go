package storage

import (
	"context"
	"testing"
	"time"

	"github.com/heatlink/heatlink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCallHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.InsertCall(ctx, types.CallRecord{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Service:   types.ServiceSetParameter,
			System:    7,
		}))
	}

	records, err := m.GetCallHistory(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2, "end of range is exclusive")
	assert.Equal(t, base, records[0].Timestamp)
	assert.Equal(t, base.Add(time.Hour), records[1].Timestamp)

	records, err = m.GetCallHistory(ctx, base.Add(5*time.Hour), base.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryNotifications(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.CreateNotification(ctx, types.Notification{
		ID:        "a",
		Title:     "older",
		CreatedAt: base,
	}))
	require.NoError(t, m.CreateNotification(ctx, types.Notification{
		ID:        "b",
		Title:     "newer",
		CreatedAt: base.Add(time.Hour),
	}))

	notifications, err := m.ListNotifications(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "b", notifications[0].ID)

	notifications, err = m.ListNotifications(ctx, base)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, "newer", notifications[0].Title, "newest first")
}
