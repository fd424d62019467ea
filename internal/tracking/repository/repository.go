package repository

import (
	"context"

	"playground-flow/internal/tracking/domain"
)

// Repository defines persistence for tracking beacons.
type Repository interface {
	Create(ctx context.Context, b *domain.Beacon) error
	ListByAnonymousID(ctx context.Context, anonymousID string) ([]*domain.Beacon, error)
}
