package domain

import "testing"

func TestCanonicalName(t *testing.T) {
	cases := []struct {
		name, zone, want string
	}{
		{"www.example.com", "example.com", "www"},
		{"example.com", "example.com", "@"},
		{"example.com.", "example.com.", "@"},
		{"www.example.com.", "example.com.", "www"},
		{"other.org", "example.com", "other.org"},
	}
	for _, c := range cases {
		if got := CanonicalName(c.name, c.zone); got != c.want {
			t.Errorf("CanonicalName(%q, %q) = %q, want %q", c.name, c.zone, got, c.want)
		}
	}
}

func TestRecordKeyIgnoresRDataOrder(t *testing.T) {
	a := Record{Name: "www", Type: TypeMX, RData: map[string]string{"preference": "10", "exchange": "mail.example.com"}}
	b := Record{Name: "www", Type: TypeMX, RData: map[string]string{"exchange": "mail.example.com", "preference": "10"}}
	if a.Key("example.com") != b.Key("example.com") {
		t.Errorf("expected equal keys regardless of rdata insertion order")
	}
}

func TestRecordKeyDiffersOnRDataChange(t *testing.T) {
	a := Record{Name: "www", Type: TypeTXT, RData: map[string]string{"text": "v1"}}
	b := Record{Name: "www", Type: TypeTXT, RData: map[string]string{"text": "v2"}}
	if a.Key("example.com") == b.Key("example.com") {
		t.Errorf("expected different keys for different rdata")
	}
}

func TestRecordsEqualTTLThreshold(t *testing.T) {
	a := Record{Name: "x", Type: TypeA, TTL: 300, RData: map[string]string{"ipAddress": "1.2.3.4"}}
	b := Record{Name: "x", Type: TypeA, TTL: 150, RData: map[string]string{"ipAddress": "1.2.3.4"}}
	if !RecordsEqual(a, b, "example.com") {
		t.Errorf("expected records within TTL threshold to be equal")
	}

	c := Record{Name: "x", Type: TypeA, TTL: 0, RData: map[string]string{"ipAddress": "1.2.3.4"}}
	if RecordsEqual(a, c, "example.com") {
		t.Errorf("expected records outside TTL threshold to be unequal")
	}
}

func TestIsExcluded(t *testing.T) {
	for _, typ := range []RecordType{TypeSOA, TypeNS, TypeDNSKEY, TypeRRSIG, TypeAXFR} {
		if !IsExcluded(typ) {
			t.Errorf("expected %s to be excluded", typ)
		}
	}
	for _, typ := range []RecordType{TypeA, TypeAAAA, TypeCNAME, TypeMX, TypeTXT, TypePTR} {
		if IsExcluded(typ) {
			t.Errorf("expected %s to not be excluded", typ)
		}
	}
}

func TestValidateRData(t *testing.T) {
	if err := ValidateRData(TypeMX, map[string]string{"preference": "10"}); err == nil {
		t.Errorf("expected error for missing exchange field")
	}
	if err := ValidateRData(TypeMX, map[string]string{"preference": "10", "exchange": "mail.example.com"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
