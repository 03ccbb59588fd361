// Package ports declares the two interfaces the reconciliation engine is
// built against: the durable mirror and the per-server fleet client. Both
// are satisfied by adapters in internal/mirror and internal/fleet, and by
// hand-rolled fakes in internal/testutil for engine tests.
package ports

import (
	"context"

	"github.com/monstermuffin/technisync/internal/domain"
)

// MirrorStore is the durable, single-writer local store of per-(server,
// zone) record state, soft-delete tombstones, zone ownership and
// per-(zone, server) sync timestamps.
type MirrorStore interface {
	GetRecords(ctx context.Context, server, zone string) ([]domain.MirrorRow, error)
	GetDeletedRecords(ctx context.Context, server, zone string) ([]domain.MirrorRow, error)
	AddOrUpdateRecord(ctx context.Context, server, zone string, record domain.Record) error
	MarkRecordAsDeleted(ctx context.Context, server, zone string, record domain.Record) error

	GetZoneOwner(ctx context.Context, zone string) (string, bool, error)
	SetZoneOwner(ctx context.Context, zone, owner string) error

	GetAllZones(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context) (int, error)

	UpdateZoneSync(ctx context.Context, zone, server string) error
	GetZoneSync(ctx context.Context, zone, server string) (domain.ZoneSync, bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// FleetClient talks to one managed DNS server over its HTTP management API.
type FleetClient interface {
	GetZones(ctx context.Context) ([]string, error)
	CreateZone(ctx context.Context, zone string) error

	GetRecords(ctx context.Context, zone string) ([]domain.Record, error)
	AddRecord(ctx context.Context, zone string, record domain.Record) error
	UpdateRecord(ctx context.Context, zone string, old, updated domain.Record) error
	DeleteRecord(ctx context.Context, zone string, record domain.Record) error

	GetDHCPScopes(ctx context.Context) ([]domain.DHCPScope, error)
}
