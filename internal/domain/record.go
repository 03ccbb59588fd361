// Package domain holds the value objects shared by the mirror store, the
// fleet client and the reconciliation engine: records, zones and the keys
// used to match them across servers.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RecordType is one of the DNS resource record type codes TechniSync
// understands well enough to serialize onto the wire.
type RecordType string

const (
	TypeA     RecordType = "A"
	TypeAAAA  RecordType = "AAAA"
	TypeCNAME RecordType = "CNAME"
	TypeMX    RecordType = "MX"
	TypeNS    RecordType = "NS"
	TypeTXT   RecordType = "TXT"
	TypeSOA   RecordType = "SOA"
	TypePTR   RecordType = "PTR"

	TypeRRSIG  RecordType = "RRSIG"
	TypeNSEC   RecordType = "NSEC"
	TypeNSEC3  RecordType = "NSEC3"
	TypeDNSKEY RecordType = "DNSKEY"
	TypeDS     RecordType = "DS"
	TypeCDS    RecordType = "CDS"
	TypeCDNSKEY RecordType = "CDNSKEY"
	TypeTSIG   RecordType = "TSIG"
	TypeTKEY   RecordType = "TKEY"
	TypeAXFR   RecordType = "AXFR"
	TypeIXFR   RecordType = "IXFR"
)

// excludedTypes never get inserted, updated, tombstoned or propagated.
// SOA/NS are server-managed (created implicitly with the zone); the rest
// are DNSSEC or zone-transfer plumbing this daemon deliberately ignores.
var excludedTypes = map[RecordType]struct{}{
	TypeSOA:     {},
	TypeNS:      {},
	TypeRRSIG:   {},
	TypeNSEC:    {},
	TypeNSEC3:   {},
	TypeDNSKEY:  {},
	TypeDS:      {},
	TypeCDS:     {},
	TypeCDNSKEY: {},
	TypeTSIG:    {},
	TypeTKEY:    {},
	TypeAXFR:    {},
	TypeIXFR:    {},
}

// IsExcluded reports whether records of t are kept out of reconciliation
// entirely.
func IsExcluded(t RecordType) bool {
	_, ok := excludedTypes[t]
	return ok
}

// TTLThreshold is the TTL delta, in seconds, that two otherwise matching
// records must stay below to be considered equal. It absorbs upstreams
// that report a TTL counting down toward zero.
const TTLThreshold = 300

// Record is a single DNS resource record as seen on one server.
type Record struct {
	Name  string
	Type  RecordType
	TTL   int
	RData map[string]string
}

// CanonicalRData returns the JSON serialization of r's rdata with keys
// sorted lexicographically, the "canonical_rdata" term from the record key.
func (r Record) CanonicalRData() string {
	return canonicalJSON(r.RData)
}

func canonicalJSON(rdata map[string]string) string {
	keys := make([]string, 0, len(rdata))
	for k := range rdata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(rdata[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// RecordKey is the canonical (name, type, rdata) triple used to match a
// record across servers and between a remote view and the mirror.
type RecordKey struct {
	Name  string
	Type  RecordType
	RData string
}

// CanonicalName strips a trailing ".<zone>" suffix and maps a name equal
// to the zone itself to "@", matching how Technitium reports apex records.
func CanonicalName(name, zone string) string {
	name = strings.TrimSuffix(name, ".")
	zone = strings.TrimSuffix(zone, ".")
	if name == zone {
		return "@"
	}
	suffix := "." + zone
	if strings.HasSuffix(name, suffix) {
		return strings.TrimSuffix(name, suffix)
	}
	return name
}

// Key builds the record key for r relative to zone.
func (r Record) Key(zone string) RecordKey {
	return RecordKey{
		Name:  CanonicalName(r.Name, zone),
		Type:  r.Type,
		RData: r.CanonicalRData(),
	}
}

// RecordsEqual reports whether a and b share a key (relative to zone) and
// whose TTLs differ by less than TTLThreshold.
func RecordsEqual(a, b Record, zone string) bool {
	if a.Key(zone) != b.Key(zone) {
		return false
	}
	delta := a.TTL - b.TTL
	if delta < 0 {
		delta = -delta
	}
	return delta < TTLThreshold
}

// Operation is the last write applied to a MirrorRow.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpDelete Operation = "DELETE"
)

// MirrorRow is the mirror store's durable representation of a record as
// observed on one server, including soft-delete tombstone state.
type MirrorRow struct {
	Server        string
	Zone          string
	Name          string
	Type          RecordType
	TTL           int
	RData         map[string]string
	LastOperation Operation
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record projects a MirrorRow back to the plain Record it mirrors.
func (m MirrorRow) Record() Record {
	return Record{Name: m.Name, Type: m.Type, TTL: m.TTL, RData: m.RData}
}

// Key builds the record key for the row relative to its own zone.
func (m MirrorRow) Key() RecordKey {
	return m.Record().Key(m.Zone)
}

// ZoneOwnership pins a zone to authoritative mode, naming the server whose
// view is propagated outward verbatim.
type ZoneOwnership struct {
	Zone      string
	Owner     string
	CreatedAt time.Time
}

// ZoneSync records the last successful ingest timestamp for a (zone,
// server) pair.
type ZoneSync struct {
	Zone       string
	Server     string
	LastSynced time.Time
}

// ValidateRData checks that rdata carries every field required for t,
// per the wire serialization table. It does not validate field contents
// beyond presence, which is all the upstream API itself enforces.
func ValidateRData(t RecordType, rdata map[string]string) error {
	required, ok := requiredFields[t]
	if !ok {
		return nil
	}
	for _, field := range required {
		if _, present := rdata[field]; !present {
			return fmt.Errorf("record type %s missing required rdata field %q", t, field)
		}
	}
	return nil
}

var requiredFields = map[RecordType][]string{
	TypeA:     {"ipAddress"},
	TypeAAAA:  {"ipAddress"},
	TypeCNAME: {"cname"},
	TypeMX:    {"preference", "exchange"},
	TypeNS:    {"nameServer"},
	TypeTXT:   {"text"},
	TypeSOA:   {"primaryNameServer", "responsiblePerson", "serial", "refresh", "retry", "expire", "minimum"},
	TypePTR:   {"ptrName"},
}
