package repository

import (
	"context"
	"database/sql"

	"playground-flow/internal/tracking/domain"
)

const (
	beaconColumns = `id, anonymous_id, login, action, url, object_id, property_name, property_value, ip, created_at`

	createBeaconSQL = `INSERT INTO tracking_beacons (` + beaconColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	listByAnonymousIDSQL = `SELECT ` + beaconColumns + ` FROM tracking_beacons
WHERE anonymous_id = $1 ORDER BY created_at ASC`
)

// PostgresRepository implements Repository using database/sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a beacon repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the beacon.
func (r *PostgresRepository) Create(ctx context.Context, b *domain.Beacon) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, createBeaconSQL,
		b.ID, b.AnonymousID, b.Login, b.Action, b.URL,
		b.ObjectID, b.PropertyName, b.PropertyValue, b.IP, b.CreatedAt)
	return err
}

// ListByAnonymousID returns the beacons of one browser, oldest first.
func (r *PostgresRepository) ListByAnonymousID(ctx context.Context, anonymousID string) ([]*domain.Beacon, error) {
	rows, err := r.db.QueryContext(ctx, listByAnonymousIDSQL, anonymousID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Beacon
	for rows.Next() {
		b, err := scanBeacon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBeacon(row scanner) (*domain.Beacon, error) {
	var b domain.Beacon
	if err := row.Scan(&b.ID, &b.AnonymousID, &b.Login, &b.Action, &b.URL,
		&b.ObjectID, &b.PropertyName, &b.PropertyValue, &b.IP, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

var _ Repository = (*PostgresRepository)(nil)
