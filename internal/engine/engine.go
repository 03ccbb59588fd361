// Package engine implements the two-phase reconciliation loop: ingest
// pulls each server's truth into the mirror, propagate pushes the
// mirror's authoritative view back out to the fleet.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monstermuffin/technisync/internal/config"
	"github.com/monstermuffin/technisync/internal/domain"
	"github.com/monstermuffin/technisync/internal/metrics"
	"github.com/monstermuffin/technisync/internal/ports"
)

// mirrorError marks a failure that occurred while reading or writing the
// mirror store. Per the error handling design, any such failure is fatal
// to the current tick: propagation is skipped and the next tick retries
// from scratch.
type mirrorError struct {
	err error
}

func (e *mirrorError) Error() string { return fmt.Sprintf("mirror I/O failed: %v", e.err) }
func (e *mirrorError) Unwrap() error { return e.err }

func wrapMirror(err error) error {
	if err == nil {
		return nil
	}
	return &mirrorError{err: err}
}

func isMirrorError(err error) bool {
	var me *mirrorError
	return errors.As(err, &me)
}

// changeCounts accumulates write operations applied to one (server, zone)
// pair during a tick, for the end-of-tick summary.
type changeCounts struct {
	Add    int
	Update int
	Delete int
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger overrides the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine is the reconciliation engine: one mirror store, one fleet client
// per managed server, and the loaded configuration.
type Engine struct {
	cfg    *config.Config
	mirror ports.MirrorStore
	fleet  map[string]ports.FleetClient

	logger *slog.Logger

	mu      sync.Mutex
	changes map[string]map[string]*changeCounts
}

// New builds an Engine. fleet must contain one client per server named in
// cfg.Servers.
func New(cfg *config.Config, mirror ports.MirrorStore, fleet map[string]ports.FleetClient, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		mirror:  mirror,
		fleet:   fleet,
		logger:  slog.Default(),
		changes: make(map[string]map[string]*changeCounts),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sortedServerNames returns configured server names in a fixed order, so
// that ingest order (and therefore reverse-zone ownership races) is
// deterministic given a fixed configuration.
func (e *Engine) sortedServerNames() []string {
	names := make([]string, 0, len(e.fleet))
	for name := range e.fleet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sync runs one full reconciliation tick: ingest every server, then
// propagate. A mirror I/O failure during ingest aborts the tick before
// propagation runs.
func (e *Engine) Sync(ctx context.Context) error {
	tickID := uuid.New().String()
	start := time.Now()
	logger := e.logger.With("tick_id", tickID)
	logger.Info("reconciliation tick starting")

	for _, name := range e.sortedServerNames() {
		client := e.fleet[name]
		if err := e.ingestServer(ctx, logger, name, client); err != nil {
			if isMirrorError(err) {
				metrics.TicksTotal.WithLabelValues("mirror_error").Inc()
				logger.Error("mirror I/O error during ingest, aborting tick", "server", name, "error", err)
				return fmt.Errorf("ingest %s: %w", name, err)
			}
			metrics.IngestErrorsTotal.WithLabelValues(name).Inc()
			logger.Warn("ingest failed for server, continuing with remaining servers", "server", name, "error", err)
		}
	}

	if err := e.propagateChanges(ctx, logger); err != nil {
		metrics.TicksTotal.WithLabelValues("propagate_error").Inc()
		logger.Error("propagation aborted", "error", err)
		return fmt.Errorf("propagate: %w", err)
	}

	e.logSyncSummary(logger)

	if count, err := e.mirror.CountRows(ctx); err != nil {
		logger.Warn("failed to read mirror row count", "error", err)
	} else {
		metrics.MirrorRows.Set(float64(count))
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	logger.Info("reconciliation tick complete", "duration", time.Since(start))
	return nil
}

// ingestServer ingests every syncable zone from one server, then (if
// enabled) derives and ingests its reverse zones from DHCP scopes.
func (e *Engine) ingestServer(ctx context.Context, logger *slog.Logger, server string, client ports.FleetClient) error {
	zones, err := client.GetZones(ctx)
	if err != nil {
		return fmt.Errorf("list zones: %w", err)
	}

	for _, zone := range zones {
		if domain.IsInternalZone(zone) || domain.IsReverseZone(zone) {
			continue
		}
		if !e.cfg.ShouldSyncZone(zone) {
			continue
		}
		if err := e.syncZone(ctx, logger, server, client, zone); err != nil {
			if isMirrorError(err) {
				return err
			}
			logger.Warn("zone ingest failed", "server", server, "zone", zone, "error", err)
		}
	}

	if e.cfg.SyncReverseZones {
		if err := e.syncDHCPScopes(ctx, logger, server, client); err != nil {
			if isMirrorError(err) {
				return err
			}
			logger.Warn("dhcp scope sync failed", "server", server, "error", err)
		}
	}
	return nil
}

// filterExcluded drops records whose type is in the excluded set.
func filterExcluded(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if !domain.IsExcluded(r.Type) {
			out = append(out, r)
		}
	}
	return out
}

func keyRecords(records []domain.Record, zone string) map[domain.RecordKey]domain.Record {
	out := make(map[domain.RecordKey]domain.Record, len(records))
	for _, r := range records {
		out[r.Key(zone)] = r
	}
	return out
}

func keyRows(rows []domain.MirrorRow) map[domain.RecordKey]domain.MirrorRow {
	out := make(map[domain.RecordKey]domain.MirrorRow, len(rows))
	for _, r := range rows {
		out[r.Key()] = r
	}
	return out
}

// syncZone implements phase 1 (ingest) for one (server, zone) pair.
func (e *Engine) syncZone(ctx context.Context, logger *slog.Logger, server string, client ports.FleetClient, zone string) error {
	localRows, err := e.mirror.GetRecords(ctx, server, zone)
	if err != nil {
		return wrapMirror(fmt.Errorf("read mirror records: %w", err))
	}
	deletedRows, err := e.mirror.GetDeletedRecords(ctx, server, zone)
	if err != nil {
		return wrapMirror(fmt.Errorf("read mirror tombstones: %w", err))
	}
	remote, err := client.GetRecords(ctx, zone)
	if err != nil {
		return fmt.Errorf("fetch remote records: %w", err)
	}

	local := keyRows(localRows)
	deleted := keyRows(deletedRows)
	remoteFiltered := filterExcluded(remote)
	remoteByKey := keyRecords(remoteFiltered, zone)

	for key, rec := range remoteByKey {
		switch {
		case keyIn(deleted, key):
			// Reappeared upstream after being tombstoned locally: the
			// mirror's tombstone wins, push a delete back to the server.
			if err := client.DeleteRecord(ctx, zone, rec); err != nil {
				logger.Warn("failed to revert stale remote re-add", "server", server, "zone", zone, "error", err)
				continue
			}
			e.trackChange(server, zone, "delete")
		case !keyIn(local, key):
			if err := e.mirror.AddOrUpdateRecord(ctx, server, zone, rec); err != nil {
				return wrapMirror(fmt.Errorf("mirror new record: %w", err))
			}
		default:
			localRec := local[key].Record()
			if !domain.RecordsEqual(rec, localRec, zone) {
				if err := e.mirror.AddOrUpdateRecord(ctx, server, zone, rec); err != nil {
					return wrapMirror(fmt.Errorf("mirror updated record: %w", err))
				}
			}
		}
	}

	for key, row := range local {
		if keyIn(remoteByKey, key) || keyIn(deleted, key) {
			continue
		}
		if err := e.mirror.MarkRecordAsDeleted(ctx, server, zone, row.Record()); err != nil {
			return wrapMirror(fmt.Errorf("tombstone vanished record: %w", err))
		}
		e.trackChange(server, zone, "delete")
	}

	if err := e.mirror.UpdateZoneSync(ctx, zone, server); err != nil {
		return wrapMirror(fmt.Errorf("advance zone sync: %w", err))
	}
	return nil
}

func keyIn[V any](m map[domain.RecordKey]V, k domain.RecordKey) bool {
	_, ok := m[k]
	return ok
}

// propagateChanges implements phase 2: push each zone's authoritative
// view to every server.
func (e *Engine) propagateChanges(ctx context.Context, logger *slog.Logger) error {
	zones, err := e.mirror.GetAllZones(ctx)
	if err != nil {
		return wrapMirror(fmt.Errorf("list mirrored zones: %w", err))
	}

	servers := e.sortedServerNames()

	for _, zone := range zones {
		if domain.IsInternalZone(zone) {
			continue
		}

		owner, owned, err := e.mirror.GetZoneOwner(ctx, zone)
		if err != nil {
			return wrapMirror(fmt.Errorf("read zone owner for %s: %w", zone, err))
		}

		var target []domain.Record
		if owned {
			rows, err := e.mirror.GetRecords(ctx, owner, zone)
			if err != nil {
				return wrapMirror(fmt.Errorf("read owner records for %s: %w", zone, err))
			}
			target = filterExcluded(rowsToRecords(rows))
		} else {
			union, err := e.unionAcrossServers(ctx, zone, servers)
			if err != nil {
				return err
			}
			target = filterExcluded(union)
		}

		for _, server := range servers {
			if owned && server == owner {
				continue
			}
			if domain.IsReverseZone(zone) {
				if err := e.ensureZoneExists(ctx, server, zone); err != nil {
					logger.Warn("failed to ensure reverse zone exists", "server", server, "zone", zone, "error", err)
					continue
				}
			}
			if err := e.updateServerRecords(ctx, logger, server, zone, target); err != nil {
				if isMirrorError(err) {
					return err
				}
				metrics.PropagateErrorsTotal.WithLabelValues(server).Inc()
				logger.Warn("failed to update server records", "server", server, "zone", zone, "error", err)
			}
		}
	}
	return nil
}

func rowsToRecords(rows []domain.MirrorRow) []domain.Record {
	out := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Record())
	}
	return out
}

// unionAcrossServers builds the deduplicated union of every server's
// mirrored view of zone, first occurrence wins (iterating servers in a
// fixed order).
func (e *Engine) unionAcrossServers(ctx context.Context, zone string, servers []string) ([]domain.Record, error) {
	seen := make(map[domain.RecordKey]struct{})
	var union []domain.Record
	for _, server := range servers {
		rows, err := e.mirror.GetRecords(ctx, server, zone)
		if err != nil {
			return nil, wrapMirror(fmt.Errorf("read mirror records of %s for %s: %w", server, zone, err))
		}
		for _, row := range rows {
			key := row.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			union = append(union, row.Record())
		}
	}
	return union, nil
}

// updateServerRecords reconciles one server's live view of zone against
// target, deleting before adding so identity collisions never
// double-populate.
func (e *Engine) updateServerRecords(ctx context.Context, logger *slog.Logger, server, zone string, target []domain.Record) error {
	client, ok := e.fleet[server]
	if !ok {
		return fmt.Errorf("no fleet client configured for server %q", server)
	}

	current, err := client.GetRecords(ctx, zone)
	if err != nil {
		return fmt.Errorf("fetch current records: %w", err)
	}
	tombstones, err := e.mirror.GetDeletedRecords(ctx, server, zone)
	if err != nil {
		return wrapMirror(fmt.Errorf("read tombstones: %w", err))
	}

	currentByKey := keyRecords(filterExcluded(current), zone)
	targetByKey := keyRecords(target, zone)
	deletedByKey := keyRows(tombstones)

	for key, rec := range currentByKey {
		if !keyIn(targetByKey, key) || keyIn(deletedByKey, key) {
			if err := client.DeleteRecord(ctx, zone, rec); err != nil {
				logger.Warn("delete failed", "server", server, "zone", zone, "record", rec.Name, "error", err)
				continue
			}
			e.trackChange(server, zone, "delete")
		}
	}

	for key, rec := range targetByKey {
		if keyIn(deletedByKey, key) {
			continue
		}
		currentRec, exists := currentByKey[key]
		switch {
		case !exists:
			if err := client.AddRecord(ctx, zone, rec); err != nil {
				logger.Warn("add failed", "server", server, "zone", zone, "record", rec.Name, "error", err)
				continue
			}
			e.trackChange(server, zone, "add")
		case !domain.RecordsEqual(rec, currentRec, zone):
			if err := client.UpdateRecord(ctx, zone, currentRec, rec); err != nil {
				logger.Warn("update failed", "server", server, "zone", zone, "record", rec.Name, "error", err)
				continue
			}
			e.trackChange(server, zone, "update")
		}
	}
	return nil
}

// syncDHCPScopes derives reverse zones from server's DHCP scopes, ensures
// each exists on every configured server, pins ownership to server, and
// ingests the zone from it.
func (e *Engine) syncDHCPScopes(ctx context.Context, logger *slog.Logger, server string, client ports.FleetClient) error {
	scopes, err := client.GetDHCPScopes(ctx)
	if err != nil {
		return fmt.Errorf("list dhcp scopes: %w", err)
	}

	for _, scope := range scopes {
		zone, err := domain.ReverseZoneFromNetwork(scope.NetworkAddress, scope.SubnetMask)
		if err != nil {
			logger.Warn("skipping dhcp scope with invalid network", "server", server, "scope", scope.Name, "error", err)
			continue
		}
		if err := domain.ValidateZoneName(zone); err != nil {
			logger.Warn("skipping dhcp-derived zone that failed validation", "zone", zone, "error", err)
			continue
		}
		if domain.IsInternalZone(zone) {
			continue
		}

		for _, name := range e.sortedServerNames() {
			if err := e.ensureZoneExists(ctx, name, zone); err != nil {
				logger.Warn("failed to ensure reverse zone exists", "server", name, "zone", zone, "error", err)
			}
		}

		if err := e.mirror.SetZoneOwner(ctx, zone, server); err != nil {
			return wrapMirror(fmt.Errorf("set reverse zone owner: %w", err))
		}

		if err := e.syncZone(ctx, logger, server, client, zone); err != nil {
			if isMirrorError(err) {
				return err
			}
			logger.Warn("failed to ingest derived reverse zone", "server", server, "zone", zone, "error", err)
		}
	}
	return nil
}

// ensureZoneExists creates zone on server if it is not already present.
func (e *Engine) ensureZoneExists(ctx context.Context, server, zone string) error {
	client, ok := e.fleet[server]
	if !ok {
		return fmt.Errorf("no fleet client configured for server %q", server)
	}
	zones, err := client.GetZones(ctx)
	if err != nil {
		return fmt.Errorf("list zones: %w", err)
	}
	for _, z := range zones {
		if z == zone {
			return nil
		}
	}
	return client.CreateZone(ctx, zone)
}

// trackChange accumulates one write operation for the end-of-tick summary.
func (e *Engine) trackChange(server, zone, operation string) {
	metrics.ChangesTotal.WithLabelValues(server, zone, operation).Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.changes[server] == nil {
		e.changes[server] = make(map[string]*changeCounts)
	}
	counts, ok := e.changes[server][zone]
	if !ok {
		counts = &changeCounts{}
		e.changes[server][zone] = counts
	}
	switch operation {
	case "add":
		counts.Add++
	case "update":
		counts.Update++
	case "delete":
		counts.Delete++
	}
}

// logSyncSummary emits a human-readable summary of every change applied
// this tick, then clears the tracker.
func (e *Engine) logSyncSummary(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.changes) == 0 {
		logger.Info("sync summary: no changes")
		e.changes = make(map[string]map[string]*changeCounts)
		return
	}

	for server, zones := range e.changes {
		for zone, counts := range zones {
			logger.Info("sync summary",
				"server", server, "zone", zone,
				"add", counts.Add, "update", counts.Update, "delete", counts.Delete)
		}
	}
	e.changes = make(map[string]map[string]*changeCounts)
}
