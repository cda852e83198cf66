// Package supervisor wires the two link endpoints, the mapping table,
// the ARP cache, the debug/metrics HTTP surface, and both translator
// directions together, and runs them under a single errgroup until one
// fails or the process is signaled to stop.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nyantec/nyat64/internal/config"
	"github.com/nyantec/nyat64/internal/debugsrv"
	"github.com/nyantec/nyat64/internal/metrics"
	"github.com/nyantec/nyat64/internal/netio"
	"github.com/nyantec/nyat64/internal/xlate"
)

// Endpoints holds the platform I/O handles the supervisor opened at
// startup; Endpoints.Close releases them in the caller's defer, and
// Supervisor.Run also closes them once its context is done.
type Endpoints struct {
	Tun netio.TunDevice
	Raw netio.RawSocket
}

// Close releases both endpoints, logging (but not failing on) errors.
func (e Endpoints) Close(logger *slog.Logger) {
	if e.Tun != nil {
		if err := e.Tun.Close(); err != nil {
			logger.Warn("close tun device", slog.String("error", err.Error()))
		}
	}
	if e.Raw != nil {
		if err := e.Raw.Close(); err != nil {
			logger.Warn("close raw socket", slog.String("error", err.Error()))
		}
	}
}

// Open brings up the TUN and raw Ethernet endpoints per cfg.Interfaces:
// applies address/MTU/up-state (when configured) before handing the
// interfaces to the translator directions.
func Open(cfg *config.Config, admin netio.InterfaceAdmin, logger *slog.Logger) (Endpoints, net.HardwareAddr, error) {
	tun, err := netio.NewTunDevice(cfg.Interfaces.IPv6.Name)
	if err != nil {
		return Endpoints{}, nil, fmt.Errorf("open tun device: %w", err)
	}

	if err := applyInterfaceConfig(admin, tun.Name(), cfg.Interfaces.IPv6, logger); err != nil {
		_ = tun.Close()
		return Endpoints{}, nil, fmt.Errorf("configure tun device: %w", err)
	}

	raw, err := netio.NewRawSocket(cfg.Interfaces.IPv4.Name)
	if err != nil {
		_ = tun.Close()
		return Endpoints{}, nil, fmt.Errorf("open raw socket: %w", err)
	}

	if err := applyInterfaceConfig(admin, cfg.Interfaces.IPv4.Name, cfg.Interfaces.IPv4, logger); err != nil {
		_ = tun.Close()
		_ = raw.Close()
		return Endpoints{}, nil, fmt.Errorf("configure raw interface: %w", err)
	}

	ifMAC, err := admin.HardwareAddr(cfg.Interfaces.IPv4.Name)
	if err != nil {
		_ = tun.Close()
		_ = raw.Close()
		return Endpoints{}, nil, fmt.Errorf("resolve interface MAC: %w", err)
	}

	return Endpoints{Tun: tun, Raw: raw}, ifMAC, nil
}

func applyInterfaceConfig(admin netio.InterfaceAdmin, ifName string, ic config.InterfaceConfig, logger *slog.Logger) error {
	if prefix, ok, err := ic.AddrPrefix(); err != nil {
		return fmt.Errorf("parse address: %w", err)
	} else if ok {
		if err := admin.AddAddress(ifName, net.IP(prefix.Addr().AsSlice()), prefix.Bits()); err != nil {
			return fmt.Errorf("add address: %w", err)
		}
	}

	if ic.MTU > 0 {
		if err := admin.SetMTU(ifName, ic.MTU); err != nil {
			return fmt.Errorf("set mtu: %w", err)
		}
	}

	if err := admin.SetUp(ifName); err != nil {
		return fmt.Errorf("set up: %w", err)
	}

	logger.Info("interface configured", slog.String("interface", ifName))
	return nil
}

// Supervisor owns the running translator directions, the debug/metrics
// HTTP server, and the systemd watchdog keepalive, all bound to one
// errgroup.
type Supervisor struct {
	endpoints Endpoints
	table     *xlate.TableHolder
	arp       *xlate.ARPCache
	metrics   *metrics.Collector
	v6tov4    *xlate.V6ToV4
	v4tov6    *xlate.V4ToV6
	debug     *debugsrv.Server
	log       *slog.Logger
}

// New constructs a Supervisor from an already-loaded configuration and
// already-opened endpoints. debugAddr may be empty to disable the
// debug/metrics HTTP surface.
func New(cfg *config.Config, endpoints Endpoints, ifMAC net.HardwareAddr, debugAddr string, reg *prometheus.Registry, logger *slog.Logger) (*Supervisor, error) {
	mappings, err := cfg.ToXlateMappings()
	if err != nil {
		return nil, fmt.Errorf("build mapping table: %w", err)
	}

	table := xlate.NewTableHolder(xlate.NewTable(mappings))
	collector := metrics.NewCollector(reg)
	arp := xlate.NewARPCache(ifMAC, endpoints.Raw, table, logger, collector)

	v6tov4 := &xlate.V6ToV4{
		Tun:    endpoints.Tun,
		Raw:    endpoints.Raw,
		IfMAC:  ifMAC,
		Table:  table,
		ARP:    arp,
		Log:    logger,
		Metric: collector,
	}

	v4tov6 := &xlate.V4ToV6{
		Raw:       endpoints.Raw,
		TunWriter: endpoints.Tun,
		Table:     table,
		ARP:       arp,
		SendARP:   cfg.SendARP,
		Log:       logger,
		Metric:    collector,
	}

	var debug *debugsrv.Server
	if debugAddr != "" {
		debug = debugsrv.New(debugAddr, debugsrv.Deps{
			Table:    table,
			ARP:      arp,
			Registry: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Log:      logger,
		})
	}

	return &Supervisor{
		endpoints: endpoints,
		table:     table,
		arp:       arp,
		metrics:   collector,
		v6tov4:    v6tov4,
		v4tov6:    v4tov6,
		debug:     debug,
		log:       logger,
	}, nil
}

// Reload parses cfg's mappings and, on success, atomically swaps them in
// as the active mapping table; lookups from either translator direction
// and the debug surface that start after Reload returns observe the new
// table. Reload does not run config.Validate: the caller (handleSIGHUP,
// through config.Load) does. The ARP cache is never touched: resolved
// entries remain valid across a reload, and FindV4ByLocal ownership
// checks made against them will reflect the new table on their next
// call since the cache holds the same TableSource, not a snapshot.
func (s *Supervisor) Reload(cfg *config.Config) error {
	mappings, err := cfg.ToXlateMappings()
	if err != nil {
		return fmt.Errorf("build mapping table: %w", err)
	}

	s.table.Store(xlate.NewTable(mappings))
	return nil
}

// Run starts both translator directions, the debug server (if enabled),
// and the systemd watchdog keepalive, and blocks until ctx is canceled
// or one of them returns a fatal error — whichever happens first cancels
// the rest.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.v6tov4.Run(gCtx)
	})

	g.Go(func() error {
		return s.v4tov6.Run(gCtx)
	})

	if s.debug != nil {
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- s.debug.ListenAndServe() }()

			select {
			case <-gCtx.Done():
				_ = s.debug.Shutdown()
				<-errCh
				return nil
			case err := <-errCh:
				return fmt.Errorf("debug server: %w", err)
			}
		})
	}

	g.Go(func() error {
		return runWatchdog(gCtx, s.log)
	})

	g.Go(func() error {
		return s.sampleARPCacheSize(gCtx)
	})

	notifyReady(s.log)

	g.Go(func() error {
		<-gCtx.Done()
		notifyStopping(s.log)
		// Closing the endpoints unblocks the translators' pending reads.
		s.endpoints.Close(s.log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	return nil
}

// arpCacheSampleInterval is how often the ARP cache size gauge is
// refreshed. The cache itself is cheap to size (a map length under a
// mutex); this just keeps the gauge from ever being sampled off the
// packet-forwarding hot path.
const arpCacheSampleInterval = 5 * time.Second

// sampleARPCacheSize periodically publishes the ARP cache's live entry
// count to the metrics collector, so nyat64_arp_cache_size reflects
// reality instead of staying at its zero value forever.
func (s *Supervisor) sampleARPCacheSize(ctx context.Context) error {
	ticker := time.NewTicker(arpCacheSampleInterval)
	defer ticker.Stop()

	s.metrics.SetCacheSize(s.arp.Size())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.metrics.SetCacheSize(s.arp.Size())
		}
	}
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives at half the configured
// interval; it exits immediately if the watchdog is not enabled.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", err.Error()))
			}
		}
	}
}
