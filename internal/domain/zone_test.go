package domain

import "testing"

func TestIsReverseZone(t *testing.T) {
	cases := map[string]bool{
		"0.0.10.in-addr.arpa": true,
		"example.com":         false,
		"1.ip6.arpa":          true,
		"in-addr.arpa":        true,
	}
	for zone, want := range cases {
		if got := IsReverseZone(zone); got != want {
			t.Errorf("IsReverseZone(%q) = %v, want %v", zone, got, want)
		}
	}
}

func TestIsInternalZone(t *testing.T) {
	internal := []string{"0.in-addr.arpa", "127.in-addr.arpa", "255.in-addr.arpa", "localhost"}
	for _, zone := range internal {
		if !IsInternalZone(zone) {
			t.Errorf("expected %q to be internal", zone)
		}
	}
	if IsInternalZone("0.0.10.in-addr.arpa") {
		t.Errorf("expected derived scope zone to not be internal")
	}
	if IsInternalZone("example.com") {
		t.Errorf("expected forward zone to not be internal")
	}
}

func TestReverseZoneFromNetwork(t *testing.T) {
	zone, err := ReverseZoneFromNetwork("10.0.0.0", "255.255.255.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zone != "0.0.10.in-addr.arpa" {
		t.Errorf("got %q, want 0.0.10.in-addr.arpa", zone)
	}
}

func TestReverseZoneFromNetworkInvalid(t *testing.T) {
	if _, err := ReverseZoneFromNetwork("not-an-ip", "255.255.255.0"); err == nil {
		t.Errorf("expected error for invalid network address")
	}
	if _, err := ReverseZoneFromNetwork("10.0.0.0", "not-a-mask"); err == nil {
		t.Errorf("expected error for invalid subnet mask")
	}
}

func TestValidateZoneName(t *testing.T) {
	if err := ValidateZoneName("example.com."); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateZoneName(""); err == nil {
		t.Errorf("expected error for empty name")
	}
	if err := ValidateZoneName("bad_label!.com."); err == nil {
		t.Errorf("expected error for invalid label")
	}
}
