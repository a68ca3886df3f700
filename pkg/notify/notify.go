// Package notify delivers user-facing notifications raised by service calls,
// for example the result of a parameter read.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/storage"
	"github.com/heatlink/heatlink/pkg/types"
)

// Notifier creates a notification for the user to read later.
type Notifier interface {
	Create(ctx context.Context, title, message string) error
}

// LogNotifier writes notifications to the log and nowhere else.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) Create(ctx context.Context, title, message string) error {
	log.Ctx(ctx).InfoContext(ctx, "notification",
		slog.String("title", title),
		slog.String("message", message),
	)
	return nil
}

// StoreNotifier persists notifications to the database so they can be
// listed later.
type StoreNotifier struct {
	db storage.Database
}

var _ Notifier = (*StoreNotifier)(nil)

// NewStoreNotifier returns a Notifier backed by db.
func NewStoreNotifier(db storage.Database) *StoreNotifier {
	return &StoreNotifier{db: db}
}

func (s *StoreNotifier) Create(ctx context.Context, title, message string) error {
	now := time.Now().UTC()
	n := types.Notification{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	if err := s.db.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}
