// Command router runs an IPv4 software router over one or more TAP/bridge
// interfaces, configured from a TOML file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/soypat/ip4router/arp"
	"github.com/soypat/ip4router/internal"
	"github.com/soypat/ip4router/internal/config"
	"github.com/soypat/ip4router/internal/metrics"
	"github.com/soypat/ip4router/router"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliOverrides holds flag values that take precedence over the TOML config
// file when set.
type cliOverrides struct {
	logLevel      string
	metricsListen string
}

func newRootCmd() *cobra.Command {
	var configPath string
	var overrides cliOverrides
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Run an IPv4 software router over TAP/bridge interfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, overrides)
		},
	}
	flags := pflag.NewFlagSet("router", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "router.toml", "path to the TOML configuration file")
	flags.StringVar(&overrides.logLevel, "log-level", "", "override the config file's log.level (debug, info, warn, error)")
	flags.StringVar(&overrides.metricsListen, "metrics-listen", "", "override the config file's metrics.listen address")
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

// transport is the subset of internal.Tap/internal.Bridge the router needs:
// blocking frame I/O on a single link.
type transport interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

func run(ctx context.Context, configPath string, overrides cliOverrides) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if overrides.logLevel != "" {
		cfg.Log.Level = overrides.logLevel
	}
	if overrides.metricsListen != "" {
		cfg.Metrics.Listen = overrides.metricsListen
		cfg.Metrics.Enabled = true
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	ifaces, err := config.BuildInterfaces(cfg)
	if err != nil {
		return err
	}
	routes, err := config.BuildRoutes(cfg)
	if err != nil {
		return err
	}

	transports := make(map[string]transport, len(cfg.Interfaces))
	for i := range cfg.Interfaces {
		ic := &cfg.Interfaces[i]
		t, err := openTransport(ic)
		if err != nil {
			return fmt.Errorf("opening interface %q: %w", ic.Name, err)
		}
		transports[ic.Name] = t
		defer t.Close()
	}

	rtr := &router.Router{
		Ifaces:  ifaces,
		Routes:  routes,
		Cache:   arp.NewCache(1024, arp.DefaultEntryTTL),
		Send:    ifaceSender{transports},
		Log:     log,
		Metrics: metrics.Recorder{},
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Listen, log)
	}

	go rtr.RunSweeper(ctx)

	for _, ifc := range ifaces.All() {
		go readLoop(ctx, rtr, ifc.Name, transports[ifc.Name], log)
	}

	log.Info("router started", "interfaces", len(cfg.Interfaces))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func openTransport(ic *config.InterfaceConfig) (transport, error) {
	mac, err := net.ParseMAC(ic.HWAddr)
	if err != nil {
		return nil, err
	}
	var hw [6]byte
	copy(hw[:], mac)
	switch ic.Transport {
	case "tap":
		return internal.NewTap(ic.Device, netip.MustParsePrefix(ic.Address))
	case "bridge":
		br, err := internal.NewBridge(ic.Device)
		if err != nil {
			return nil, err
		}
		if err := br.SetHardwareAddress6(hw); err != nil {
			return nil, err
		}
		return br, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", ic.Transport)
	}
}

// readLoop blocks reading frames from t and hands each to the router,
// following the teacher's read/demux/write loop shape (see the bridge
// example this router descends from) but as one goroutine per interface
// instead of a single-stack poll loop.
func readLoop(ctx context.Context, rtr *router.Router, ifaceName string, t transport, log *slog.Logger) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := t.Read(buf)
		if err != nil {
			log.Warn("interface read failed", "iface", ifaceName, "err", err)
			continue
		}
		if n == 0 {
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		rtr.HandleFrame(frame, ifaceName)
	}
}

type ifaceSender struct {
	transports map[string]transport
}

func (s ifaceSender) Send(frame []byte, iface string) error {
	t, ok := s.transports[iface]
	if !ok {
		return fmt.Errorf("unknown egress interface %q", iface)
	}
	_, err := t.Write(frame)
	return err
}

func serveMetrics(ctx context.Context, listen string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Info("metrics server listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", "err", err)
	}
}
