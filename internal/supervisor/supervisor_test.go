package supervisor_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nyantec/nyat64/internal/config"
	"github.com/nyantec/nyat64/internal/netio"
	"github.com/nyantec/nyat64/internal/supervisor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Interfaces.IPv4.Name = "eth0"
	cfg.Interfaces.IPv6.Name = "tun0"
	cfg.Mappings = []config.MappingConfig{
		{
			IPv4Local:  "10.0.0.1",
			IPv4Remote: "10.0.0.2",
			IPv6Local:  "2001:db8::1",
			IPv6Remote: "2001:db8::2",
		},
	}
	return cfg
}

// fakeTun and fakeRaw are minimal netio.TunDevice/RawSocket fakes: every
// read blocks forever, since ReadPacket/ReadFrame never return on their
// own. The translators check ctx.Err() before each read, so a
// pre-canceled context never even reaches these fakes.
type fakeTun struct{}

func (fakeTun) Name() string { return "tun0" }

func (fakeTun) ReadPacket(buf []byte) (int, error) {
	select {}
}

func (fakeTun) WritePacket(ctx context.Context, packet []byte) error { return nil }
func (fakeTun) Close() error                                         { return nil }

type fakeRaw struct{}

func (fakeRaw) ReadFrame(buf []byte) (int, error) {
	select {}
}

func (fakeRaw) WriteFrame(ctx context.Context, frame []byte) error { return nil }
func (fakeRaw) Close() error                                       { return nil }

func TestSupervisorNewBuildsTranslators(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	endpoints := supervisor.Endpoints{Tun: fakeTun{}, Raw: fakeRaw{}}
	ifMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

	sv, err := supervisor.New(cfg, endpoints, ifMAC, "", prometheus.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if sv == nil {
		t.Fatal("New() returned nil supervisor")
	}
}

func TestSupervisorRunStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	endpoints := supervisor.Endpoints{Tun: fakeTun{}, Raw: fakeRaw{}}
	ifMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

	sv, err := supervisor.New(cfg, endpoints, ifMAC, "", prometheus.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- sv.Run(ctx) }()

	select {
	case err := <-done:
		// Both translators return ctx.Err() immediately on a
		// pre-canceled context; the supervisor propagates that as its
		// own error rather than treating cancellation as success.
		if err == nil {
			t.Error("Run() on pre-canceled context returned nil, want context.Canceled wrapped")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestEndpointsCloseIsSafe(t *testing.T) {
	t.Parallel()

	e := supervisor.Endpoints{Tun: fakeTun{}, Raw: fakeRaw{}}
	e.Close(discardLogger())
}

func TestSupervisorReloadSwapsMappings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	endpoints := supervisor.Endpoints{Tun: fakeTun{}, Raw: fakeRaw{}}
	ifMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

	sv, err := supervisor.New(cfg, endpoints, ifMAC, "", prometheus.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	reloaded := testConfig()
	reloaded.Mappings = []config.MappingConfig{
		{
			IPv4Local:  "10.0.0.5",
			IPv4Remote: "10.0.0.6",
			IPv6Local:  "2001:db8::5",
			IPv6Remote: "2001:db8::6",
		},
	}

	if err := sv.Reload(reloaded); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
}

func TestSupervisorReloadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	endpoints := supervisor.Endpoints{Tun: fakeTun{}, Raw: fakeRaw{}}
	ifMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

	sv, err := supervisor.New(cfg, endpoints, ifMAC, "", prometheus.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	broken := testConfig()
	broken.Mappings = []config.MappingConfig{{IPv4Local: "not-an-address"}}

	if err := sv.Reload(broken); err == nil {
		t.Fatal("Reload() with an unparseable mapping should fail")
	}
}
