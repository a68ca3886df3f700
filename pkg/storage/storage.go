package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/heatlink/heatlink/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Database defines the interface for persisting call audit records and
// notifications.
type Database interface {
	// InsertCall appends one service call audit record.
	InsertCall(ctx context.Context, record types.CallRecord) error
	// GetCallHistory retrieves call records within [start, end).
	GetCallHistory(ctx context.Context, start, end time.Time) ([]types.CallRecord, error)

	// CreateNotification persists a user notification.
	CreateNotification(ctx context.Context, n types.Notification) error
	// ListNotifications retrieves notifications created at or after since.
	ListNotifications(ctx context.Context, since time.Time) ([]types.Notification, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, memory)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "memory":
			p.Database = NewMemory()
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
