package materials

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/telesis-app/telesis/pkg/storage/postgres"
)

// ErrNotFound is returned when a material does not exist in the caller's
// organization
var ErrNotFound = errors.New("material not found")

// PostgresService persists material metadata in PostgreSQL and content in
// blob storage. Every query is scoped by organization id.
type PostgresService struct {
	conns *postgres.ConnectionManager
	blobs BlobStore
	cache *postgres.RedisClient
}

// NewPostgresService creates the material service. blobs may be nil when no
// object storage is configured; content is then rejected at the handler.
func NewPostgresService(conns *postgres.ConnectionManager, blobs BlobStore, cache *postgres.RedisClient) *PostgresService {
	return &PostgresService{conns: conns, blobs: blobs, cache: cache}
}

func listCacheKey(orgID string) string {
	return fmt.Sprintf("materials:%s:*", orgID)
}

// Create inserts a material. When content is non-empty and blob storage is
// configured the content is uploaded first; a failed insert leaves an
// orphaned blob for the janitor to collect.
func (s *PostgresService) Create(ctx context.Context, orgID, trainerID string, req CreateMaterialRequest, content []byte) (*Material, error) {
	m := &Material{
		ID:             uuid.New(),
		OrganizationID: orgID,
		TrainerID:      trainerID,
		Title:          req.Title,
		Description:    req.Description,
		ContentType:    req.ContentType,
		SizeBytes:      int64(len(content)),
	}

	if len(content) > 0 && s.blobs != nil {
		m.StorageKey = StorageKey(orgID, content)
		if err := s.blobs.Put(ctx, m.StorageKey, bytes.NewReader(content), req.ContentType); err != nil {
			return nil, fmt.Errorf("failed to store material content: %w", err)
		}
	}

	query := `
		INSERT INTO materials (id, organization_id, trainer_id, title, description, content_type, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := s.conns.Primary().QueryRowContext(ctx, query,
		m.ID,
		m.OrganizationID,
		m.TrainerID,
		m.Title,
		m.Description,
		m.ContentType,
		m.SizeBytes,
		m.StorageKey,
	).Scan(&m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidatePatterns(ctx, listCacheKey(orgID))
	}

	return m, nil
}

// Get returns a material by id within the organization
func (s *PostgresService) Get(ctx context.Context, orgID string, id uuid.UUID) (*Material, error) {
	query := `
		SELECT id, organization_id, trainer_id, title, COALESCE(description, ''),
		       COALESCE(content_type, ''), size_bytes, COALESCE(storage_key, ''),
		       created_at, updated_at
		FROM materials
		WHERE id = $1 AND organization_id = $2
	`

	var m Material
	err := s.conns.Replica().QueryRowContext(ctx, query, id, orgID).Scan(
		&m.ID,
		&m.OrganizationID,
		&m.TrainerID,
		&m.Title,
		&m.Description,
		&m.ContentType,
		&m.SizeBytes,
		&m.StorageKey,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}

	return &m, nil
}

// List returns the organization's materials, newest first
func (s *PostgresService) List(ctx context.Context, orgID string, limit, offset int) ([]*Material, int64, error) {
	cacheKey := fmt.Sprintf("materials:%s:%d:%d", orgID, limit, offset)
	if s.cache != nil {
		var cached struct {
			Materials []*Material `json:"materials"`
			Total     int64       `json:"total"`
		}
		if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return cached.Materials, cached.Total, nil
		}
	}

	var total int64
	err := s.conns.Replica().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM materials WHERE organization_id = $1", orgID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count materials: %w", err)
	}

	query := `
		SELECT id, organization_id, trainer_id, title, COALESCE(description, ''),
		       COALESCE(content_type, ''), size_bytes, COALESCE(storage_key, ''),
		       created_at, updated_at
		FROM materials
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	items := make([]*Material, 0)
	for rows.Next() {
		var m Material
		if err := rows.Scan(
			&m.ID,
			&m.OrganizationID,
			&m.TrainerID,
			&m.Title,
			&m.Description,
			&m.ContentType,
			&m.SizeBytes,
			&m.StorageKey,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan material: %w", err)
		}
		items = append(items, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate materials: %w", err)
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, cacheKey, map[string]interface{}{
			"materials": items,
			"total":     total,
		})
	}

	return items, total, nil
}

// Delete removes a material and its stored content within the organization
func (s *PostgresService) Delete(ctx context.Context, orgID string, id uuid.UUID) error {
	var storageKey string
	err := s.conns.Primary().QueryRowContext(ctx,
		"DELETE FROM materials WHERE id = $1 AND organization_id = $2 RETURNING COALESCE(storage_key, '')",
		id, orgID,
	).Scan(&storageKey)

	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}

	if storageKey != "" && s.blobs != nil {
		// Best effort; orphaned blobs are collected by the janitor
		s.blobs.Delete(ctx, storageKey)
	}

	if s.cache != nil {
		s.cache.InvalidatePatterns(ctx, listCacheKey(orgID))
	}

	return nil
}

// Count returns the number of materials across all organizations, for gauge
// metrics
func (s *PostgresService) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.conns.Replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM materials").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count materials: %w", err)
	}
	return total, nil
}
