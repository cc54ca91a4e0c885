package storage

import (
	"context"

	"github.com/aisaas/backend/internal/app/domain/creation"
)

// CreationStore persists creation records.
type CreationStore interface {
	// CreateCreation inserts one row and returns it with ID and timestamps set.
	CreateCreation(ctx context.Context, c creation.Creation) (creation.Creation, error)
	// ListUserCreations returns a user's creations, newest first.
	ListUserCreations(ctx context.Context, userID string) ([]creation.Creation, error)
	// ListPublishedCreations returns every published creation, newest first.
	ListPublishedCreations(ctx context.Context) ([]creation.Creation, error)
}
