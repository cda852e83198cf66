// nyat64 -- a stateless NAT64-style translator bridging a point-to-point
// IPv6 tunnel and a raw-Ethernet IPv4 network via a static mapping table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nyantec/nyat64/internal/config"
	"github.com/nyantec/nyat64/internal/netio"
	"github.com/nyantec/nyat64/internal/supervisor"
	appversion "github.com/nyantec/nyat64/internal/version"
)

// errMissingConfigPath indicates -c was not supplied.
var errMissingConfigPath = errors.New("-c <config.json> is required")

// debugAddr is the listen address for the debug/metrics HTTP surface.
// Fixed rather than configurable: the surface is deliberately minimal
// and always-on when the daemon runs, matching the read-only,
// no-auth posture it is designed for.
const debugAddr = ":9100"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "path to configuration file (JSON)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("nyat64"))
		return 0
	}

	if *configPath == "" {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error(errMissingConfigPath.Error())
		flag.Usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logger := newLogger(logLevel)

	logger.Info("nyat64 starting",
		slog.String("version", appversion.Version),
		slog.String("ipv4_interface", cfg.Interfaces.IPv4.Name),
		slog.String("ipv6_interface", cfg.Interfaces.IPv6.Name),
		slog.Bool("send_arp", cfg.SendARP),
		slog.Int("mappings", len(cfg.Mappings)),
	)

	admin := netio.NewInterfaceAdmin()

	endpoints, ifMAC, err := supervisor.Open(cfg, admin, logger)
	if err != nil {
		logger.Error("failed to open interfaces", slog.String("error", err.Error()))
		return 1
	}
	defer endpoints.Close(logger)

	reg := prometheus.NewRegistry()

	sv, err := supervisor.New(cfg, endpoints, ifMAC, debugAddr, reg, logger)
	if err != nil {
		logger.Error("failed to build supervisor", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go handleSIGHUP(ctx, sv, *configPath, logger)

	if err := sv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("nyat64 exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("nyat64 stopped")
	return 0
}

// newLogger creates a structured JSON logger bound to level. The level
// is set once here and nothing changes it afterwards (SIGHUP reloads
// only the mapping table): Info, or the level named by NYAT64_LOG_LEVEL
// (debug, info, warn, error) when that variable holds one of those.
func newLogger(level *slog.LevelVar) *slog.Logger {
	level.Set(slog.LevelInfo)

	if v := os.Getenv("NYAT64_LOG_LEVEL"); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			level.Set(l)
		}
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// handleSIGHUP reloads configuration on SIGHUP: on success, the
// supervisor atomically swaps in the newly validated mapping table; the
// ARP cache and both translator goroutines are never restarted. On
// failure the prior configuration remains in effect and the error is
// logged, rather than taking down the daemon over a bad reload.
func handleSIGHUP(ctx context.Context, sv *supervisor.Supervisor, configPath string, logger *slog.Logger) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	defer signal.Stop(sigHUP)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Error("SIGHUP: configuration file is invalid, still running with the original configuration",
					slog.String("error", err.Error()),
				)
				continue
			}

			if err := sv.Reload(cfg); err != nil {
				logger.Error("SIGHUP: failed to apply new configuration, still running with the original configuration",
					slog.String("error", err.Error()),
				)
				continue
			}

			logger.Info("SIGHUP: mapping table reloaded", slog.Int("mappings", len(cfg.Mappings)))
		}
	}
}
