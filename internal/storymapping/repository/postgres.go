package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"playground-flow/internal/storymapping/domain"
)

const (
	listMappingsSQL = `SELECT id, title, event_before_url, event_after_url, points, objects, client
FROM story_mappings ORDER BY id`

	saveMappingSQL = `INSERT INTO story_mappings (id, title, event_before_url, event_after_url, points, objects, client, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	event_before_url = EXCLUDED.event_before_url,
	event_after_url = EXCLUDED.event_after_url,
	points = EXCLUDED.points,
	objects = EXCLUDED.objects,
	client = EXCLUDED.client,
	updated_at = now()`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a story mapping repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListAll returns every stored mapping ordered by id. Accessors are not bound; the catalog binds them.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*domain.StoryMapping, error) {
	rows, err := r.db.QueryContext(ctx, listMappingsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StoryMapping
	for rows.Next() {
		var (
			m       domain.StoryMapping
			objects []byte
			client  []byte
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.EventBeforeURL, &m.EventAfterURL, &m.Points, &objects, &client); err != nil {
			return nil, err
		}
		if err := decodeColumns(&m, objects, client); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Save inserts or replaces the mapping with m.ID.
func (r *PostgresRepository) Save(ctx context.Context, m *domain.StoryMapping) error {
	objects, client, err := encodeColumns(m)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, saveMappingSQL,
		m.ID, m.Title, m.EventBeforeURL, m.EventAfterURL, m.Points, objects, client)
	return err
}

func encodeColumns(m *domain.StoryMapping) (objects []byte, client []byte, err error) {
	list := m.Objects
	if list == nil {
		list = []domain.ObjectMapping{}
	}
	objects, err = json.Marshal(list)
	if err != nil {
		return nil, nil, fmt.Errorf("story mapping %d: encode objects: %w", m.ID, err)
	}
	if m.Client != nil {
		client, err = json.Marshal(m.Client)
		if err != nil {
			return nil, nil, fmt.Errorf("story mapping %d: encode client: %w", m.ID, err)
		}
	}
	return objects, client, nil
}

func decodeColumns(m *domain.StoryMapping, objects, client []byte) error {
	if len(objects) > 0 {
		if err := json.Unmarshal(objects, &m.Objects); err != nil {
			return fmt.Errorf("story mapping %d: decode objects: %w", m.ID, err)
		}
	}
	if len(client) > 0 && string(client) != "null" {
		m.Client = &domain.ClientStory{}
		if err := json.Unmarshal(client, m.Client); err != nil {
			return fmt.Errorf("story mapping %d: decode client: %w", m.ID, err)
		}
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
