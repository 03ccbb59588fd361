// Package testutil holds hand-rolled fakes for ports.MirrorStore and
// ports.FleetClient, used by engine tests instead of a mocking framework.
package testutil

import (
	"context"
	"errors"

	"github.com/monstermuffin/technisync/internal/domain"
)

// FakeMirrorStore is an in-memory ports.MirrorStore.
type FakeMirrorStore struct {
	rows      map[string]domain.MirrorRow // keyed by server|zone|name|type
	owners    map[string]string
	zoneSyncs map[string]domain.ZoneSync
	Err       error
}

func NewFakeMirrorStore() *FakeMirrorStore {
	return &FakeMirrorStore{
		rows:      make(map[string]domain.MirrorRow),
		owners:    make(map[string]string),
		zoneSyncs: make(map[string]domain.ZoneSync),
	}
}

func rowKey(server, zone, name string, t domain.RecordType) string {
	return server + "|" + zone + "|" + name + "|" + string(t)
}

func (f *FakeMirrorStore) GetRecords(_ context.Context, server, zone string) ([]domain.MirrorRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.MirrorRow
	for _, r := range f.rows {
		if r.Server == server && r.Zone == zone && r.LastOperation == domain.OpAdd {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeMirrorStore) GetDeletedRecords(_ context.Context, server, zone string) ([]domain.MirrorRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []domain.MirrorRow
	for _, r := range f.rows {
		if r.Server == server && r.Zone == zone && r.LastOperation == domain.OpDelete {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeMirrorStore) AddOrUpdateRecord(_ context.Context, server, zone string, record domain.Record) error {
	if f.Err != nil {
		return f.Err
	}
	f.rows[rowKey(server, zone, record.Name, record.Type)] = domain.MirrorRow{
		Server: server, Zone: zone, Name: record.Name, Type: record.Type,
		TTL: record.TTL, RData: record.RData, LastOperation: domain.OpAdd,
	}
	return nil
}

func (f *FakeMirrorStore) MarkRecordAsDeleted(_ context.Context, server, zone string, record domain.Record) error {
	if f.Err != nil {
		return f.Err
	}
	f.rows[rowKey(server, zone, record.Name, record.Type)] = domain.MirrorRow{
		Server: server, Zone: zone, Name: record.Name, Type: record.Type,
		TTL: record.TTL, RData: record.RData, LastOperation: domain.OpDelete,
	}
	return nil
}

func (f *FakeMirrorStore) GetZoneOwner(_ context.Context, zone string) (string, bool, error) {
	if f.Err != nil {
		return "", false, f.Err
	}
	owner, ok := f.owners[zone]
	return owner, ok, nil
}

func (f *FakeMirrorStore) SetZoneOwner(_ context.Context, zone, owner string) error {
	if f.Err != nil {
		return f.Err
	}
	f.owners[zone] = owner
	return nil
}

func (f *FakeMirrorStore) GetAllZones(_ context.Context) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	seen := make(map[string]struct{})
	var zones []string
	for _, r := range f.rows {
		if _, ok := seen[r.Zone]; !ok {
			seen[r.Zone] = struct{}{}
			zones = append(zones, r.Zone)
		}
	}
	return zones, nil
}

func (f *FakeMirrorStore) CountRows(_ context.Context) (int, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return len(f.rows), nil
}

func (f *FakeMirrorStore) UpdateZoneSync(_ context.Context, zone, server string) error {
	if f.Err != nil {
		return f.Err
	}
	f.zoneSyncs[zone+"|"+server] = domain.ZoneSync{Zone: zone, Server: server}
	return nil
}

func (f *FakeMirrorStore) GetZoneSync(_ context.Context, zone, server string) (domain.ZoneSync, bool, error) {
	if f.Err != nil {
		return domain.ZoneSync{}, false, f.Err
	}
	sync, ok := f.zoneSyncs[zone+"|"+server]
	return sync, ok, nil
}

func (f *FakeMirrorStore) Ping(_ context.Context) error { return f.Err }
func (f *FakeMirrorStore) Close() error                 { return nil }

// FakeFleetClient is an in-memory ports.FleetClient for one server.
type FakeFleetClient struct {
	Zones      map[string][]domain.Record // zone -> records
	Scopes     []domain.DHCPScope
	FailGet    bool
	CreatedZones map[string]bool
}

func NewFakeFleetClient() *FakeFleetClient {
	return &FakeFleetClient{Zones: make(map[string][]domain.Record), CreatedZones: make(map[string]bool)}
}

func (f *FakeFleetClient) GetZones(_ context.Context) ([]string, error) {
	if f.FailGet {
		return nil, errors.New("fleet unreachable")
	}
	var out []string
	for z := range f.Zones {
		out = append(out, z)
	}
	return out, nil
}

func (f *FakeFleetClient) CreateZone(_ context.Context, zone string) error {
	if f.Zones[zone] == nil {
		f.Zones[zone] = []domain.Record{}
	}
	f.CreatedZones[zone] = true
	return nil
}

func (f *FakeFleetClient) GetRecords(_ context.Context, zone string) ([]domain.Record, error) {
	if f.FailGet {
		return nil, errors.New("fleet unreachable")
	}
	return append([]domain.Record{}, f.Zones[zone]...), nil
}

func (f *FakeFleetClient) AddRecord(_ context.Context, zone string, record domain.Record) error {
	f.Zones[zone] = append(f.Zones[zone], record)
	return nil
}

func (f *FakeFleetClient) UpdateRecord(_ context.Context, zone string, old, updated domain.Record) error {
	for i, r := range f.Zones[zone] {
		if r.Name == old.Name && r.Type == old.Type {
			f.Zones[zone][i] = updated
			return nil
		}
	}
	f.Zones[zone] = append(f.Zones[zone], updated)
	return nil
}

func (f *FakeFleetClient) DeleteRecord(_ context.Context, zone string, record domain.Record) error {
	kept := f.Zones[zone][:0]
	for _, r := range f.Zones[zone] {
		if r.Name == record.Name && r.Type == record.Type && r.CanonicalRData() == record.CanonicalRData() {
			continue
		}
		kept = append(kept, r)
	}
	f.Zones[zone] = kept
	return nil
}

func (f *FakeFleetClient) GetDHCPScopes(_ context.Context) ([]domain.DHCPScope, error) {
	return f.Scopes, nil
}
