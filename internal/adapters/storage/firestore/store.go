package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (SUGAR_GCP_PROJECT). When credentialsFile is
// empty, application default credentials apply.
func NewStore(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return snap.Data(), nil
}

func (s *Store) SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	var err error
	if merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", collection, id, err)
	}
	return nil
}

// AppendUnique adds values to an array field with set semantics. The
// document is created when absent.
func (s *Store) AppendUnique(ctx context.Context, collection, id, field string, values ...any) error {
	ref := s.client.Collection(collection).Doc(id)
	_, err := ref.Set(ctx, map[string]any{
		field: firestore.ArrayUnion(values...),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("appending to %s/%s.%s: %w", collection, id, field, err)
	}
	return nil
}

func (s *Store) ServerTimestamp() any {
	return firestore.ServerTimestamp
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
