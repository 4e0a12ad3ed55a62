package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/AgenticFinLab/FinMycelium/pkg/cascade"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// CreateBuild inserts a build in its initial state.
func (s *CascadeDBStorage) CreateBuild(ctx context.Context, build store.Build) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO builds (id, query, keywords, document_keys, state)
		VALUES ($1, $2, $3, $4, $5)
	`, build.ID, build.Query, build.Keywords, build.DocumentKeys, string(build.State))
	return err
}

// SetBuildState advances the persisted state of a build.
func (s *CascadeDBStorage) SetBuildState(ctx context.Context, id string, state cascade.State) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tag, err := s.conn.Exec(ctx, `
		UPDATE builds SET state = $2, updated_at = now() WHERE id = $1
	`, id, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("build %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// FailBuild records a terminal failure. The build keeps its last state so
// callers can see how far it got.
func (s *CascadeDBStorage) FailBuild(ctx context.Context, id string, reason string) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tag, err := s.conn.Exec(ctx, `
		UPDATE builds SET error = $2, updated_at = now() WHERE id = $1
	`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("build %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SaveCascade stores the frozen cascade and moves the build into its final
// state in one statement.
func (s *CascadeDBStorage) SaveCascade(ctx context.Context, buildID string, c *cascade.Cascade) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}

	logger.Debug("[Store][SaveCascade] Persisting cascade", "build", buildID, "partial", c.Partial)

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tag, err := s.conn.Exec(ctx, `
		UPDATE builds
		SET cascade = $2, partial = $3, state = $4, updated_at = now()
		WHERE id = $1
	`, buildID, raw, c.Partial, string(cascade.StateFrozen))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
	}
	return nil
}

// GetBuild returns one build by ID.
func (s *CascadeDBStorage) GetBuild(ctx context.Context, id string) (store.Build, error) {
	var build store.Build
	var state string
	err := s.conn.QueryRow(ctx, `
		SELECT id, query, keywords, document_keys, state, error, partial, created_at, updated_at
		FROM builds WHERE id = $1
	`, id).Scan(&build.ID, &build.Query, &build.Keywords, &build.DocumentKeys,
		&state, &build.Error, &build.Partial, &build.CreatedAt, &build.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return store.Build{}, fmt.Errorf("build %s: %w", id, store.ErrNotFound)
		}
		return store.Build{}, err
	}
	build.State = cascade.State(state)
	return build, nil
}

// GetCascade returns the stored cascade of a frozen build.
func (s *CascadeDBStorage) GetCascade(ctx context.Context, buildID string) (*cascade.Cascade, error) {
	var raw []byte
	err := s.conn.QueryRow(ctx, `SELECT cascade FROM builds WHERE id = $1`, buildID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("build %s: %w", buildID, store.ErrNotFound)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cascade for build %s: %w", buildID, store.ErrNotFound)
	}

	var c cascade.Cascade
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListBuilds returns the most recent builds, newest first.
func (s *CascadeDBStorage) ListBuilds(ctx context.Context, limit int32) ([]store.Build, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, query, keywords, document_keys, state, error, partial, created_at, updated_at
		FROM builds
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []store.Build
	for rows.Next() {
		var build store.Build
		var state string
		if err := rows.Scan(&build.ID, &build.Query, &build.Keywords, &build.DocumentKeys,
			&state, &build.Error, &build.Partial, &build.CreatedAt, &build.UpdatedAt); err != nil {
			return nil, err
		}
		build.State = cascade.State(state)
		builds = append(builds, build)
	}
	return builds, rows.Err()
}
