package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Records are stored as JSON string blobs keyed by RFC3339
// timestamps so time ranges map onto document ID range queries.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// callDocID formats the document ID for a call record. Nanosecond precision
// keeps bursts of calls within the same second from colliding while staying
// lexicographically ordered.
func callDocID(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// InsertCall appends a service call record to the "call_history" collection
// as a JSON blob.
func (f *FirestoreProvider) InsertCall(ctx context.Context, record types.CallRecord) error {
	jsonBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	_, err = f.client.Collection("call_history").Doc(callDocID(record.Timestamp)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": record.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert call record: %w", err)
	}
	return nil
}

// GetCallHistory retrieves call records within the specified time range.
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetCallHistory(ctx context.Context, start, end time.Time) ([]types.CallRecord, error) {
	coll := f.client.Collection("call_history")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(callDocID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(callDocID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []types.CallRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating call records: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "call record doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("call record document %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "call record doc json not string", slog.String("docID", doc.Ref.ID))
			return nil, fmt.Errorf("call record document %s 'json' field is not string", doc.Ref.ID)
		}

		var rec types.CallRecord
		if err := json.Unmarshal([]byte(jsonStr), &rec); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal call record", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal call record (id=%s): %w", doc.Ref.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// CreateNotification persists a notification to the "notifications"
// collection.
func (f *FirestoreProvider) CreateNotification(ctx context.Context, n types.Notification) error {
	jsonBytes, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = f.client.Collection("notifications").Doc(n.ID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications retrieves notifications created at or after since,
// newest first.
func (f *FirestoreProvider) ListNotifications(ctx context.Context, since time.Time) ([]types.Notification, error) {
	iter := f.client.Collection("notifications").
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var notifications []types.Notification
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("error iterating notifications: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "notification doc missing json", slog.String("docID", doc.Ref.ID))
			// Skip malformed documents
			continue
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "notification doc json not string", slog.String("docID", doc.Ref.ID))
			continue
		}

		var n types.Notification
		if err := json.Unmarshal([]byte(jsonStr), &n); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal notification", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}
