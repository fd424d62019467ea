package repository

import (
	"context"
	"database/sql"
	"errors"

	"playground-flow/internal/storytelling/domain"
)

const (
	storyColumns = `id, mapping_id, user_id, object, points, secret_key, created_at`

	findBySecretKeySQL = `SELECT ` + storyColumns + ` FROM story_tellings
WHERE secret_key = $1 ORDER BY created_at ASC LIMIT 1`

	findByMappingAndUserSQL = `SELECT ` + storyColumns + ` FROM story_tellings
WHERE mapping_id = $1 AND user_id = $2 ORDER BY created_at ASC`

	createStorySQL = `INSERT INTO story_tellings (` + storyColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// PostgresRepository implements Repository using database/sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a story repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStory(row scanner) (*domain.StoryTelling, error) {
	var s domain.StoryTelling
	if err := row.Scan(&s.ID, &s.MappingID, &s.UserID, &s.Object, &s.Points, &s.SecretKey, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindBySecretKey returns the first story recorded with secretKey, or nil if none.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindBySecretKey(ctx context.Context, secretKey string) (*domain.StoryTelling, error) {
	if secretKey == "" {
		return nil, nil
	}
	s, err := scanStory(r.db.QueryRowContext(ctx, findBySecretKeySQL, secretKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// FindByMappingAndUser returns the stories a user already has for a mapping.
func (r *PostgresRepository) FindByMappingAndUser(ctx context.Context, mappingID int64, userID string) ([]*domain.StoryTelling, error) {
	rows, err := r.db.QueryContext(ctx, findByMappingAndUserSQL, mappingID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.StoryTelling
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the story. The story must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.StoryTelling) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, createStorySQL,
		s.ID, s.MappingID, s.UserID, s.Object, s.Points, s.SecretKey, s.CreatedAt)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
