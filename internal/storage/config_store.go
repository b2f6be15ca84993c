package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"goldboard/internal/retailer"
)

const (
	getRetailerConfigSQL = `SELECT doc FROM retailer_configs WHERE key = $1;`

	// jsonb || merges top-level keys, matching the document store contract.
	mergeRetailerConfigSQL = `INSERT INTO retailer_configs (key, doc, updated_at)
    VALUES ($1, $2::jsonb, now())
    ON CONFLICT (key) DO UPDATE
    SET doc        = retailer_configs.doc || EXCLUDED.doc,
        updated_at = now();`
)

// Get loads a retailer config document.
func (s *Store) Get(ctx context.Context, key string) (retailer.Partial, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	var raw []byte
	if err := pool.QueryRow(ctx, getRetailerConfigSQL, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get retailer config: %w", err)
	}

	var doc retailer.Partial
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("decode retailer config: %w", err)
	}
	return doc, true, nil
}

// Set merges partial into the stored retailer config document.
func (s *Store) Set(ctx context.Context, key string, partial retailer.Partial) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode retailer config: %w", err)
	}
	if _, err := pool.Exec(ctx, mergeRetailerConfigSQL, key, string(raw)); err != nil {
		return fmt.Errorf("merge retailer config: %w", err)
	}
	return nil
}

var _ retailer.Store = (*Store)(nil)
