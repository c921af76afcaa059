package roverlog

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sith-robotics/roverlog/pkg/bridge"
	"github.com/sith-robotics/roverlog/pkg/metrics"
	"github.com/sith-robotics/roverlog/pkg/mqtt"
	"github.com/sith-robotics/roverlog/pkg/store"
)

var (
	metricsEnabled bool
	metricsAddr    string
)

// connectMaxElapsed bounds the startup backoff against the broker.
const connectMaxElapsed = 1 * time.Minute

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the relay",
	Long:    `Connect to the broker and the database, then copy comms readings across until terminated.`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	logger.Info("roverlog starting",
		zap.String("broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)),
		zap.String("subscription", cfg.MQTT.Topic),
		zap.String("db", fmt.Sprintf("%s@%s/%s", cfg.DB.User, cfg.DB.Host, cfg.DB.Name)))

	// The relay cannot run without the database; pool setup failure is fatal.
	st, err := store.NewPostgres(ctx, cfg.DB.ConnString(), logger)
	if err != nil {
		return fmt.Errorf("failed to set up database pool: %w", err)
	}
	defer st.Close()

	handler := bridge.New(st, logger)

	session := mqtt.NewClient(mqtt.Options{
		Host:      cfg.MQTT.Host,
		Port:      cfg.MQTT.Port,
		ClientID:  cfg.MQTT.ClientID,
		KeepAlive: cfg.MQTT.KeepAlive,
	}, logger)
	session.Handle(cfg.MQTT.Topic, 0, handler.HandleMessage)

	if err := session.Connect(ctx, connectMaxElapsed); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer session.Disconnect(500)

	// Flags win over config file / env when set explicitly.
	enabled := cfg.Metrics.Enabled
	if cmd.Flags().Changed("metrics") {
		enabled = metricsEnabled
	}
	addr := cfg.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		addr = metricsAddr
	}
	if enabled {
		metrics.StartPrometheusServer(ctx, &wg, logger, &metrics.PromServerOpts{Addr: addr})
	}

	logger.Info("awaiting MQTT messages")

	<-sigChan
	logger.Info("received termination signal, shutting down gracefully")
	cancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10 seconds")
	}

	return nil
}

// buildLogger creates a production zap logger at the requested level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func init() {
	serveCmd.Flags().BoolVar(&metricsEnabled, "metrics", true, "Enable Prometheus metrics server")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "Prometheus metrics server address")
}
