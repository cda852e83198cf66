package debugsrv_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/nyantec/nyat64/internal/debugsrv"
	"github.com/nyantec/nyat64/internal/xlate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()

	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("parse addr %q: %v", s, err)
	}

	return a
}

func testTable(t *testing.T) *xlate.Table {
	t.Helper()

	return xlate.NewTable([]xlate.Mapping{
		{
			IPv6Local:  mustAddr(t, "2001:db8::1"),
			IPv6Remote: mustAddr(t, "2001:db8::2"),
			IPv4Local:  mustAddr(t, "10.0.0.1"),
			IPv4Remote: mustAddr(t, "10.0.0.2"),
			IPv4GW:     mustAddr(t, "10.0.0.254"),
		},
	})
}

// fakeWriter discards every frame; it satisfies xlate.Writer for tests
// that never expect an ARP request to actually be broadcast.
type fakeWriter struct{}

func (fakeWriter) WriteFrame(context.Context, []byte) error { return nil }

func newTestServer(t *testing.T, table *xlate.Table, arp *xlate.ARPCache, log *slog.Logger) *httptest.Server {
	t.Helper()

	srv := debugsrv.New(":0", debugsrv.Deps{Table: table, ARP: arp, Log: log})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts
}

func TestMappingsEndpoint(t *testing.T) {
	t.Parallel()

	log := discardLogger()
	table := testTable(t)
	arp := xlate.NewARPCache(net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, fakeWriter{}, table, log, xlate.NoopARPMetrics{})

	ts := newTestServer(t, table, arp, log)

	resp, err := http.Get(ts.URL + "/debug/mappings")
	if err != nil {
		t.Fatalf("GET /debug/mappings: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var views []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}

	if views[0]["ipv4_local"] != "10.0.0.1" {
		t.Errorf("ipv4_local = %v, want 10.0.0.1", views[0]["ipv4_local"])
	}
	if views[0]["ipv4_gateway"] != "10.0.0.254" {
		t.Errorf("ipv4_gateway = %v, want 10.0.0.254", views[0]["ipv4_gateway"])
	}
}

func TestARPEndpoint(t *testing.T) {
	t.Parallel()

	log := discardLogger()
	table := testTable(t)
	arp := xlate.NewARPCache(net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, fakeWriter{}, table, log, xlate.NoopARPMetrics{})

	arp.Set(mustAddr(t, "10.0.0.2"), net.HardwareAddr{0, 1, 2, 3, 4, 5})

	ts := newTestServer(t, table, arp, log)

	resp, err := http.Get(ts.URL + "/debug/arp")
	if err != nil {
		t.Fatalf("GET /debug/arp: %v", err)
	}
	defer resp.Body.Close()

	var views []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}

	if views[0]["addr"] != "10.0.0.2" {
		t.Errorf("addr = %v, want 10.0.0.2", views[0]["addr"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	log := discardLogger()
	table := testTable(t)
	arp := xlate.NewARPCache(net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, fakeWriter{}, table, log, xlate.NoopARPMetrics{})

	ts := newTestServer(t, table, arp, log)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
