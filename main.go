package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/loramon/device"
	"i4.energy/across/loramon/monitor"
	"i4.energy/across/loramon/relay"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.String("tx-port", "/dev/ttyUSB0", "Serial port of the transmitting module")
	flag.String("rx-port", "/dev/ttyUSB1", "Serial port of the receiving module")
	flag.Int("baud-rate", device.DefaultBaudRate, "Baud rate for serial communication")
	flag.Float64("frequency", 868, "LoRa frequency in MHz")
	flag.Int("spreading-factor", 7, "LoRa spreading factor")
	flag.Int("power", 15, "Transmit power in dBm")
	flag.Duration("send-interval", 5*time.Second, "Minimum time between two transmissions")
	flag.Duration("receiver-lead", 0, "Delay between starting the receiver and the transmitter")
	flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	flag.String("message", "", "Message to queue on the transmitter at start")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("mqtt-broker", "", "MQTT broker URL for event relay (empty disables)")
	flag.String("nats-url", "", "NATS server URL for event relay (empty disables)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	tx, err := newSession(config, device.Transmitter, config.TxPort, logger)
	if err != nil {
		logger.Error("Failed to create transmitter session", "error", err)
		os.Exit(1)
	}
	rx, err := newSession(config, device.Receiver, config.RxPort, logger)
	if err != nil {
		logger.Error("Failed to create receiver session", "error", err)
		os.Exit(1)
	}

	m, err := monitor.New(monitor.Config{
		Transmitter:  tx,
		Receiver:     rx,
		Publishers:   publishers(config, logger),
		ReceiverLead: config.ReceiverLead,
		Logger:       logger.With("component", "monitor"),
	})
	if err != nil {
		logger.Error("Failed to create monitor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if config.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, config.Duration)
		defer stop()
	}

	go m.Run(ctx)

	logger.Info("Starting LoRa monitor", "tx_port", config.TxPort, "rx_port", config.RxPort, "duration", config.Duration)
	if err := m.Start(ctx); err != nil {
		// a failed device is reported and can be restarted over HTTP
		logger.Error("Failed to start devices", "error", err)
	}
	if config.Message != "" {
		m.Enqueue(config.Message)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Monitor: m,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", "cause", context.Cause(ctx))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing device connections")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close devices", "error", err)
		os.Exit(1)
	}
}

func newSession(config *Config, role device.Role, port string, logger *slog.Logger) (*device.Session, error) {
	sessionConfig, err := device.NewConfigBuilder().
		WithRole(role).
		WithSerialPort(port, config.BaudRate, config.ReadTimeout).
		WithRadio(config.Radio).
		WithSendInterval(config.SendInterval).
		WithLogger(logger.With("component", "device")).
		Build()
	if err != nil {
		return nil, err
	}
	return device.New(sessionConfig)
}

// publishers dials the configured brokers. A broker that cannot be reached
// is logged and skipped.
func publishers(config *Config, logger *slog.Logger) []relay.Publisher {
	var out []relay.Publisher
	relayLogger := logger.With("component", "relay")

	if config.MQTT.Broker != "" {
		p, err := relay.DialMQTT(config.MQTT, relayLogger)
		if err != nil {
			logger.Error("MQTT relay disabled", "error", err)
		} else {
			out = append(out, p)
		}
	}
	if config.NATS.URL != "" {
		p, err := relay.DialNATS(config.NATS, relayLogger)
		if err != nil {
			logger.Error("NATS relay disabled", "error", err)
		} else {
			out = append(out, p)
		}
	}
	return out
}
