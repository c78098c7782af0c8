// Command sapi-device runs a SAPI sensor device.
//
// The device registers simulated sensors, serves them over CoAP on UDP
// and, optionally, over an HDLC-framed serial link, and announces itself
// via mDNS.
//
// Usage:
//
//	sapi-device [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-udp string           UDP listen address (default ":5683")
//	-serial string        Serial port for the HDLC link
//	-baud int             Serial baud rate (default 115200)
//	-name string          Device name used for mDNS
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Protocol capture file (CBOR)
//	-no-mdns              Disable mDNS advertising
//	-interactive          Run the interactive console
//
// Examples:
//
//	# Start with one simulated temperature sensor
//	sapi-device
//
//	# Start from a config file and also serve /dev/ttyUSB0
//	sapi-device -config /etc/sapi/device.yaml -serial /dev/ttyUSB0
//
// The serial port is reopened with backoff when it disappears.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sapi-coap/sapi-go/cmd/sapi-device/interactive"
	"github.com/sapi-coap/sapi-go/pkg/config"
	"github.com/sapi-coap/sapi-go/pkg/discovery"
	"github.com/sapi-coap/sapi-go/pkg/examples"
	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
	"github.com/sapi-coap/sapi-go/pkg/service"
	"github.com/sapi-coap/sapi-go/pkg/transport"
	"github.com/sapi-coap/sapi-go/pkg/version"
)

// Flags holds the command line overrides.
type Flags struct {
	ConfigFile  string
	UDPAddress  string
	SerialPort  string
	BaudRate    int
	Name        string
	LogLevel    string
	ProtocolLog string
	NoMDNS      bool
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.UDPAddress, "udp", "", "UDP listen address (default \":5683\")")
	flag.StringVar(&flags.SerialPort, "serial", "", "Serial port for the HDLC link")
	flag.IntVar(&flags.BaudRate, "baud", 0, "Serial baud rate (default 115200)")
	flag.StringVar(&flags.Name, "name", "", "Device name used for mDNS")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Protocol capture file (CBOR)")
	flag.BoolVar(&flags.NoMDNS, "no-mdns", false, "Disable mDNS advertising")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Run the interactive console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sapi-device: %v\n", err)
		os.Exit(1)
	}

	out := &switchWriter{w: os.Stderr}
	logger, err := setupLogging(cfg.Log, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sapi-device: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, out); err != nil {
		logger.Error("device failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.UDPAddress != "" {
		cfg.UDP.Enabled = true
		cfg.UDP.Address = f.UDPAddress
	}
	if f.SerialPort != "" {
		cfg.Serial.Port = f.SerialPort
	}
	if f.BaudRate > 0 {
		cfg.Serial.BaudRate = f.BaudRate
	}
	if f.Name != "" {
		cfg.Name = f.Name
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Log.ProtocolFile = f.ProtocolLog
	}
	if f.NoMDNS {
		cfg.Discovery.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(lc config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// protocolLogger combines the capture file with slog debug output.
func protocolLogger(lc config.LogConfig, logger *slog.Logger) (log.Logger, io.Closer, error) {
	var loggers []log.Logger
	var closer io.Closer

	file, err := lc.ProtocolLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	if file != nil {
		loggers = append(loggers, file)
		closer = file
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return nil, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return log.NewMultiLogger(loggers...), closer, nil
	}
}

func run(cfg *config.Config, logger *slog.Logger, out *switchWriter) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	plog, closer, err := protocolLogger(cfg.Log, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	svcCfg := service.DefaultDeviceConfig()
	svcCfg.Logger = logger
	svcCfg.ProtocolLogger = plog
	if cfg.Legacy.Enabled {
		svcCfg.Legacy = newLegacy(cfg.Legacy.Base, logger)
	}

	svc, err := service.NewDeviceService(svcCfg)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	if err := registerSensors(ctx, svc, cfg.Sensors); err != nil {
		return err
	}
	svc.OnEvent(eventLogger(logger))

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			logger.Warn("stop service", "error", err)
		}
	}()

	version.Banner(logger, svc.Registry().DeviceTypes())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.UDP.Enabled {
		udp := transport.NewUDPServer(transport.UDPConfig{
			Address:        cfg.UDP.Address,
			Logger:         logger,
			ProtocolLogger: plog,
		}, svc)
		g.Go(func() error {
			return ignoreCanceled(udp.ListenAndServe(gctx))
		})

		if cfg.Discovery.Enabled {
			adv, err := advertise(cfg, svc, logger)
			if err != nil {
				logger.Warn("mDNS advertising disabled", "error", err)
			} else {
				defer adv.Stop()
			}
		}
	}

	if cfg.Serial.Port != "" {
		sup := transport.NewSerialSupervisor(transport.SerialConfig{
			Port:           cfg.Serial.Port,
			BaudRate:       cfg.Serial.BaudRate,
			ReadTimeout:    cfg.Serial.ReadTimeout,
			Logger:         logger,
			ProtocolLogger: plog,
		}, transport.BackoffConfig{}, svc)
		g.Go(func() error {
			return sup.Run(gctx)
		})
	}

	if flags.Interactive {
		console, err := interactive.New(svc, interactive.Options{
			Interface: cfg.Discovery.Interface,
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("console: %w", err)
		}
		out.Set(console.Stderr())
		g.Go(func() error {
			console.Run(gctx, cancel)
			return nil
		})
	}

	err = g.Wait()
	out.Set(os.Stderr)
	logger.Info("shutting down")
	return err
}

// registerSensors creates and registers the configured simulated drivers.
func registerSensors(ctx context.Context, svc *service.DeviceService, sensors []config.SensorConfig) error {
	seed := uint64(time.Now().UnixNano())
	for i, sc := range sensors {
		drv, err := examples.New(sc.DriverKind(), seed+uint64(i))
		if err != nil {
			return fmt.Errorf("sensor %s: %w", sc.Type, err)
		}
		if sc.Config != "" {
			if err := drv.WriteConfig(ctx, []byte(sc.Config)); err != nil {
				return fmt.Errorf("sensor %s: %w", sc.Type, err)
			}
		}
		if _, err := svc.Register(sensor.Registration{
			DeviceType: sc.Type,
			Driver:     drv,
			Frequency:  sc.Frequency,
		}); err != nil {
			return fmt.Errorf("sensor %s: %w", sc.Type, err)
		}
	}
	return nil
}

// newLegacy serves device-level resources under /<base>/.
func newLegacy(base string, logger *slog.Logger) *interaction.Legacy {
	started := time.Now()
	legacy := interaction.NewLegacy(base)
	legacy.SetLogger(logger)
	legacy.HandleFunc("version", func(ctx context.Context, req *interaction.Request) *interaction.Response {
		return interaction.TextResponse(version.String())
	})
	legacy.HandleFunc("uptime", func(ctx context.Context, req *interaction.Request) *interaction.Response {
		secs := int64(time.Since(started) / time.Second)
		return interaction.TextResponse(strconv.FormatInt(secs, 10))
	})
	return legacy
}

func advertise(cfg *config.Config, svc *service.DeviceService, logger *slog.Logger) (*discovery.Advertiser, error) {
	port, err := udpPort(cfg.UDP.Address)
	if err != nil {
		return nil, err
	}
	adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.Discovery.Interface,
		TTL:       cfg.Discovery.TTL,
		Logger:    logger,
	})
	info := &discovery.DeviceInfo{
		Name:        cfg.Name,
		Port:        port,
		DeviceTypes: svc.Registry().DeviceTypes(),
		Version:     version.Number,
	}
	if err := adv.Advertise(info); err != nil {
		return nil, err
	}
	return adv, nil
}

func udpPort(address string) (int, error) {
	_, p, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("udp address %q: %w", address, err)
	}
	if p == "" {
		return discovery.DefaultPort, nil
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("udp port %q: %w", p, err)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("cannot advertise UDP port %d", n)
	}
	return n, nil
}

func eventLogger(logger *slog.Logger) service.EventHandler {
	return func(e service.Event) {
		switch e.Type {
		case service.EventObserverRegistered:
			logger.Info("observer registered", "type", e.DeviceType, "peer", e.Peer)
		case service.EventObserverCancelled:
			logger.Info("observer cancelled", "type", e.DeviceType, "peer", e.Peer, "reason", e.Reason)
		case service.EventNotificationFailed:
			logger.Warn("notification failed", "type", e.DeviceType, "peer", e.Peer, "error", e.Error)
		case service.EventNotificationSent:
			logger.Debug("notification sent", "type", e.DeviceType, "seq", e.Sequence)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// switchWriter lets log output move to the console once it is running.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
