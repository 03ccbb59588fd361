// Package mirror implements ports.MirrorStore against PostgreSQL: the
// durable local shadow of every managed server's per-zone record state.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/monstermuffin/technisync/internal/domain"
)

// Store is a PostgreSQL-backed ports.MirrorStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Options controls store initialization.
type Options struct {
	// Reset allows a destructive drop-and-recreate of mirror_records when
	// the stored schema_version predates the code's. Off by default.
	Reset bool
}

// Open runs migrations against db and returns a ready Store.
func Open(ctx context.Context, db *sql.DB, logger *slog.Logger, opts Options) (*Store, error) {
	if err := migrate(ctx, db, opts.Reset); err != nil {
		return nil, fmt.Errorf("migrate mirror schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getRecordsByOperation(ctx context.Context, server, zone string, op domain.Operation) ([]domain.MirrorRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server, zone, name, type, ttl, rdata, last_operation, created_at, updated_at
		FROM mirror_records
		WHERE server = $1 AND zone = $2 AND last_operation = $3`,
		server, zone, string(op))
	if err != nil {
		return nil, fmt.Errorf("query mirror_records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("closing mirror_records rows", "error", cerr)
		}
	}()

	var result []domain.MirrorRow
	for rows.Next() {
		var row domain.MirrorRow
		var rdataRaw []byte
		var lastOp string
		if err := rows.Scan(&row.Server, &row.Zone, &row.Name, &row.Type, &row.TTL, &rdataRaw, &lastOp, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mirror_records row: %w", err)
		}
		row.LastOperation = domain.Operation(lastOp)
		if err := json.Unmarshal(rdataRaw, &row.RData); err != nil {
			return nil, fmt.Errorf("decode rdata for %s/%s/%s/%s: %w", row.Server, row.Zone, row.Name, row.Type, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetRecords returns non-tombstoned rows for (server, zone).
func (s *Store) GetRecords(ctx context.Context, server, zone string) ([]domain.MirrorRow, error) {
	return s.getRecordsByOperation(ctx, server, zone, domain.OpAdd)
}

// GetDeletedRecords returns tombstone rows for (server, zone).
func (s *Store) GetDeletedRecords(ctx context.Context, server, zone string) ([]domain.MirrorRow, error) {
	return s.getRecordsByOperation(ctx, server, zone, domain.OpDelete)
}

func (s *Store) upsert(ctx context.Context, server, zone string, record domain.Record, op domain.Operation) error {
	rdataJSON, err := json.Marshal(record.RData)
	if err != nil {
		return fmt.Errorf("encode rdata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mirror_records (server, zone, name, type, ttl, rdata, last_operation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (server, zone, name, type) DO UPDATE SET
			ttl = EXCLUDED.ttl,
			rdata = EXCLUDED.rdata,
			last_operation = EXCLUDED.last_operation,
			updated_at = now()`,
		server, zone, record.Name, string(record.Type), record.TTL, rdataJSON, string(op))
	if err != nil {
		return fmt.Errorf("upsert mirror_records: %w", err)
	}
	return nil
}

// AddOrUpdateRecord upserts record as a live (non-tombstoned) row.
func (s *Store) AddOrUpdateRecord(ctx context.Context, server, zone string, record domain.Record) error {
	return s.upsert(ctx, server, zone, record, domain.OpAdd)
}

// MarkRecordAsDeleted upserts record as a tombstone.
func (s *Store) MarkRecordAsDeleted(ctx context.Context, server, zone string, record domain.Record) error {
	return s.upsert(ctx, server, zone, record, domain.OpDelete)
}

// GetZoneOwner returns the owning server for zone, if any.
func (s *Store) GetZoneOwner(ctx context.Context, zone string) (string, bool, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM zone_ownership WHERE zone = $1`, zone).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query zone_ownership: %w", err)
	}
	return owner, true, nil
}

// SetZoneOwner pins zone to authoritative mode with owner as its owner.
// Ownership is never cleared once set.
func (s *Store) SetZoneOwner(ctx context.Context, zone, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zone_ownership (zone, owner, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (zone) DO UPDATE SET owner = EXCLUDED.owner`,
		zone, owner)
	if err != nil {
		return fmt.Errorf("upsert zone_ownership: %w", err)
	}
	return nil
}

// GetAllZones returns every distinct zone observed in any mirror row.
func (s *Store) GetAllZones(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT zone FROM mirror_records`)
	if err != nil {
		return nil, fmt.Errorf("query distinct zones: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("closing zone rows", "error", cerr)
		}
	}()

	var zones []string
	for rows.Next() {
		var zone string
		if err := rows.Scan(&zone); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

// CountRows returns the total number of rows in mirror_records, live and
// tombstoned alike.
func (s *Store) CountRows(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM mirror_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count mirror_records: %w", err)
	}
	return count, nil
}

// UpdateZoneSync advances the last_synced timestamp for (zone, server).
func (s *Store) UpdateZoneSync(ctx context.Context, zone, server string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zone_sync (zone, server, last_synced)
		VALUES ($1, $2, now())
		ON CONFLICT (zone, server) DO UPDATE SET last_synced = EXCLUDED.last_synced`,
		zone, server)
	if err != nil {
		return fmt.Errorf("upsert zone_sync: %w", err)
	}
	return nil
}

// GetZoneSync returns the recorded last_synced timestamp for (zone, server).
func (s *Store) GetZoneSync(ctx context.Context, zone, server string) (domain.ZoneSync, bool, error) {
	var lastSynced time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_synced FROM zone_sync WHERE zone = $1 AND server = $2`, zone, server).Scan(&lastSynced)
	if err == sql.ErrNoRows {
		return domain.ZoneSync{}, false, nil
	}
	if err != nil {
		return domain.ZoneSync{}, false, fmt.Errorf("query zone_sync: %w", err)
	}
	return domain.ZoneSync{Zone: zone, Server: server, LastSynced: lastSynced}, true, nil
}
