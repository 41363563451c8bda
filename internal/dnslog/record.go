// Package dnslog tails the resolver's append-only query log and turns it
// into a stream of resolution events for the routing coordinator.
package dnslog

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"time"
)

// Record is one DNS resolution event: a hostname, the addresses it
// resolved to, and when. The client address is informational only and
// never drives routing decisions.
type Record struct {
	Time     time.Time
	Hostname string
	Client   netip.Addr
	Addrs    []netip.Addr
}

// recordLine is the on-disk shape: one JSON object per line, UTF-8,
// append-only.
type recordLine struct {
	TS     string   `json:"ts"`
	Name   string   `json:"name"`
	Client string   `json:"client,omitempty"`
	Addrs  []string `json:"addrs"`
}

// parseLine decodes one log line. Lines with no usable answer addresses
// are an error: the matcher has nothing to accumulate from them.
func parseLine(line []byte) (Record, error) {
	var raw recordLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, fmt.Errorf("bad json: %w", err)
	}
	if raw.Name == "" {
		return Record{}, fmt.Errorf("missing hostname")
	}

	rec := Record{Hostname: raw.Name}

	if raw.TS != "" {
		ts, err := time.Parse(time.RFC3339, raw.TS)
		if err != nil {
			return Record{}, fmt.Errorf("bad timestamp %q: %w", raw.TS, err)
		}
		rec.Time = ts
	}
	if raw.Client != "" {
		// Best effort: an unparsable client never invalidates the event.
		if addr, err := netip.ParseAddr(raw.Client); err == nil {
			rec.Client = addr
		}
	}

	for _, s := range raw.Addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return Record{}, fmt.Errorf("bad address %q: %w", s, err)
		}
		rec.Addrs = append(rec.Addrs, addr)
	}
	if len(rec.Addrs) == 0 {
		return Record{}, fmt.Errorf("no resolved addresses")
	}
	return rec, nil
}
