package domain

import (
	"net/netip"
	"testing"
)

func TestServiceTag(t *testing.T) {
	tag := ServiceTag("stream", "cdn.stream.example.com")
	if tag != "dns-auto:stream:cdn.stream.example.com" {
		t.Errorf("ServiceTag = %q", tag)
	}
	if p := ServiceTagPrefix("stream"); p != "dns-auto:stream:" {
		t.Errorf("ServiceTagPrefix = %q", p)
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		name        string
		comment     string
		wantService string
		wantLabel   string
		wantOK      bool
	}{
		{"host tag", "dns-auto:stream:cdn.example.com", "stream", "cdn.example.com", true},
		{"block tag", "dns-auto:stream:10.2.3.0/24", "stream", "10.2.3.0/24", true},
		{"foreign comment", "added by hand", "", "", false},
		{"missing label separator", "dns-auto:stream", "", "", false},
		{"empty service", "dns-auto::label", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, label, ok := ParseTag(tt.comment)
			if ok != tt.wantOK || service != tt.wantService || label != tt.wantLabel {
				t.Errorf("ParseTag(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.comment, service, label, ok, tt.wantService, tt.wantLabel, tt.wantOK)
			}
		})
	}
}

func TestRouteOwnedBy(t *testing.T) {
	r := Route{
		Prefix:  netip.MustParsePrefix("10.2.3.4/32"),
		Comment: "dns-auto:stream:cdn.example.com",
	}
	if !r.OwnedBy("stream") {
		t.Error("route should be owned by stream")
	}
	if r.OwnedBy("str") {
		t.Error("prefix of service name must not claim ownership")
	}
	if !r.IsHost() {
		t.Error("a /32 is a host route")
	}

	block := Route{Prefix: netip.MustParsePrefix("10.2.3.0/24")}
	if block.IsHost() {
		t.Error("a /24 is not a host route")
	}
}
