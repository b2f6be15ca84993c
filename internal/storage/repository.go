package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	upsertSnapshotSQL = `INSERT INTO rate_snapshots (
        bucket_ts,
        gold_24k,
        gold_22k,
        silver_999,
        silver_925,
        gold_base,
        silver_base,
        with_gst,
        frozen,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        gold_24k    = EXCLUDED.gold_24k,
        gold_22k    = EXCLUDED.gold_22k,
        silver_999  = EXCLUDED.silver_999,
        silver_925  = EXCLUDED.silver_925,
        gold_base   = EXCLUDED.gold_base,
        silver_base = EXCLUDED.silver_base,
        with_gst    = EXCLUDED.with_gst,
        frozen      = EXCLUDED.frozen,
        status      = EXCLUDED.status,
        error       = EXCLUDED.error;`

	snapshotColumns = `bucket_ts,
        gold_24k,
        gold_22k,
        silver_999,
        silver_925,
        gold_base,
        silver_base,
        with_gst,
        frozen,
        status,
        error,
        created_at`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM rate_snapshots
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSnapshotsSQL = `SELECT ` + snapshotColumns + `
    FROM rate_snapshots
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	latestSnapshotBeforeSQL = `SELECT ` + snapshotColumns + `
    FROM rate_snapshots
    WHERE bucket_ts < $1
      AND status <> 'errored'
    ORDER BY bucket_ts DESC
    LIMIT 1;`

	markSnapshotErroredSQL = `UPDATE rate_snapshots
    SET status = 'errored', error = $2
    WHERE bucket_ts = $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM rate_snapshots;`

	insertAlertSQL = `INSERT INTO rate_alerts (
        snapshot_ts,
        purity,
        previous_price,
        current_price,
        change_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (snapshot_ts, purity) DO UPDATE
    SET previous_price = EXCLUDED.previous_price,
        current_price  = EXCLUDED.current_price,
        change_pct     = EXCLUDED.change_pct,
        threshold_pct  = EXCLUDED.threshold_pct,
        direction      = EXCLUDED.direction,
        channels       = EXCLUDED.channels
    RETURNING id, snapshot_ts, purity, previous_price, current_price, change_pct, threshold_pct, direction, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        snapshot_ts,
        purity,
        previous_price,
        current_price,
        change_pct,
        threshold_pct,
        direction,
        channels,
        created_at
    FROM rate_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM rate_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore defines operations for rate snapshot persistence.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap RateSnapshot) error
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]RateSnapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]RateSnapshot, error)
	LatestSnapshotBefore(ctx context.Context, bucket time.Time) (RateSnapshot, bool, error)
	MarkSnapshotErrored(ctx context.Context, bucket time.Time, errMsg string) error
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots, alerts and retailer config documents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSnapshot persists or updates a snapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, snap RateSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if snap.Error != nil {
		errMsg = *snap.Error
	}

	_, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		snap.Bucket,
		snap.Gold24K.String(),
		snap.Gold22K.String(),
		snap.Silver999.String(),
		snap.Silver925.String(),
		snap.GoldBase.String(),
		snap.SilverBase.String(),
		snap.WithGST,
		snap.Frozen,
		snap.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert rate snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]RateSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	return collectSnapshots(rows, 0)
}

// ListRecentSnapshots lists the most recent snapshots ordered by descending bucket.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]RateSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	return collectSnapshots(rows, limit)
}

// LatestSnapshotBefore returns the newest non-errored snapshot older than bucket.
func (s *Store) LatestSnapshotBefore(ctx context.Context, bucket time.Time) (RateSnapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateSnapshot{}, false, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotBeforeSQL, bucket)
	if queryErr != nil {
		return RateSnapshot{}, false, fmt.Errorf("latest snapshot before: %w", queryErr)
	}
	snaps, err := collectSnapshots(rows, 1)
	if err != nil {
		return RateSnapshot{}, false, err
	}
	if len(snaps) == 0 {
		return RateSnapshot{}, false, nil
	}
	return snaps[0], true, nil
}

// MarkSnapshotErrored marks a snapshot as errored.
func (s *Store) MarkSnapshotErrored(ctx context.Context, bucket time.Time, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markSnapshotErroredSQL, bucket, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark snapshot errored: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SnapshotTS,
		alert.Purity,
		alert.PreviousPrice.String(),
		alert.CurrentPrice.String(),
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSnapshots(rows pgx.Rows, capacity int) ([]RateSnapshot, error) {
	defer rows.Close()

	snaps := make([]RateSnapshot, 0, capacity)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

func scanSnapshot(row pgx.Row) (RateSnapshot, error) {
	var (
		snap                         RateSnapshot
		gold24, gold22, silver999    string
		silver925, goldBase, silverB string
		errMsg                       sql.NullString
	)

	if err := row.Scan(
		&snap.Bucket,
		&gold24,
		&gold22,
		&silver999,
		&silver925,
		&goldBase,
		&silverB,
		&snap.WithGST,
		&snap.Frozen,
		&snap.Status,
		&errMsg,
		&snap.CreatedAt,
	); err != nil {
		return RateSnapshot{}, err
	}

	err := parseDecimals(map[string]parseTarget{
		"gold_24k":    {gold24, &snap.Gold24K},
		"gold_22k":    {gold22, &snap.Gold22K},
		"silver_999":  {silver999, &snap.Silver999},
		"silver_925":  {silver925, &snap.Silver925},
		"gold_base":   {goldBase, &snap.GoldBase},
		"silver_base": {silverB, &snap.SilverBase},
	})
	if err != nil {
		return RateSnapshot{}, err
	}

	if errMsg.Valid {
		msg := errMsg.String
		snap.Error = &msg
	}
	return snap, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec                      AlertRecord
		prev, curr, change, thre string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SnapshotTS,
		&rec.Purity,
		&prev,
		&curr,
		&change,
		&thre,
		&rec.Direction,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	err := parseDecimals(map[string]parseTarget{
		"previous_price": {prev, &rec.PreviousPrice},
		"current_price":  {curr, &rec.CurrentPrice},
		"change_pct":     {change, &rec.ChangePct},
		"threshold_pct":  {thre, &rec.ThresholdPct},
	})
	if err != nil {
		return AlertRecord{}, err
	}
	return rec, nil
}

type parseTarget struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(targets map[string]parseTarget) error {
	for column, target := range targets {
		value, err := decimal.NewFromString(target.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", column, err)
		}
		*target.dst = value
	}
	return nil
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
