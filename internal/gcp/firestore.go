package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/safeocr/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreSink mirrors outcome records into a collection, one document per
// record.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreSink(ctx context.Context, projectID, collection string) (*FirestoreSink, error) {
	if collection == "" {
		return nil, fmt.Errorf("firestore collection must be provided")
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreSink{client: client, collection: collection}, nil
}

// RecordDocID is stable for a (run, path) pair, so a replayed write
// overwrites instead of duplicating.
func RecordDocID(runID, path string) string {
	sum := sha256.Sum256([]byte(path))
	return runID + "-" + hex.EncodeToString(sum[:])[:16]
}

func (s *FirestoreSink) Write(ctx context.Context, rec models.OutcomeRecord) error {
	docRef := s.client.Collection(s.collection).Doc(RecordDocID(rec.RunID, rec.Path))
	if _, err := docRef.Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to write outcome to firestore: %w", err)
	}
	return nil
}

func (s *FirestoreSink) Close() error {
	return s.client.Close()
}
