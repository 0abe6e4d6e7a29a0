package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/itohio/cisterna/pkg/api"
	"github.com/itohio/cisterna/pkg/cistern"
	"github.com/itohio/cisterna/pkg/config"
	"github.com/itohio/cisterna/pkg/logging"
	"github.com/itohio/cisterna/pkg/maxsonar"
	"github.com/itohio/cisterna/pkg/measurement"
	"github.com/itohio/cisterna/pkg/poller"
)

func main() {
	var (
		configFlag      = flag.String("config", "settings.yaml", "Configuration file path")
		portFlag        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		listenFlag      = flag.String("listen", "", "HTTP listen address override (e.g., :8000)")
		mockFlag        = flag.Bool("mock", false, "Use mocked sensor instead of serial port")
		listPortsFlag   = flag.Bool("list-ports", false, "List available serial ports and exit")
		writeConfigFlag = flag.String("write-config", "", "Write the effective configuration to a file and exit")
	)
	flag.Parse()

	if *listPortsFlag {
		ports, err := maxsonar.Ports()
		if err != nil {
			log.Fatalf("Failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Detection.Port = *portFlag
	}
	if *listenFlag != "" {
		cfg.Server.Listen = *listenFlag
	}
	if *mockFlag && cfg.Detection.Port == "" {
		cfg.Detection.Port = "mock"
	}

	if *writeConfigFlag != "" {
		if err := cfg.Save(*writeConfigFlag); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		return
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *mockFlag, logger); err != nil {
		logger.Error("Service failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, useMock bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device, err := newDevice(cfg, useMock, logger.Named("maxsonar"))
	if err != nil {
		return err
	}

	cell := measurement.NewCell(cfg.NoDetectionMillimeters())

	p, err := poller.New(poller.Config{Interval: cfg.PollInterval()}, device, cell, logger.Named("poller"))
	if err != nil {
		return err
	}

	svc := cistern.NewService(cell, cistern.RangeFromConfig(cfg), cistern.GeometryFromConfig(cfg), logger.Named("cistern"))

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.NewServer(svc, p, logger.Named("api")).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
		_ = server.Close()
	}

	wg.Wait()
	logger.Info("Graceful shutdown complete")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

func newDevice(cfg *config.Config, useMock bool, logger *zap.Logger) (maxsonar.Device, error) {
	if useMock {
		logger.Info("Using mocked sensor")
		return maxsonar.NewMock(&cfg.Mock), nil
	}

	logger.Info("Using serial sensor", zap.String("port", cfg.Detection.Port))
	return maxsonar.New(
		cfg.Detection.Port,
		maxsonar.OptionsFromConfig(cfg.Detection),
		maxsonar.WithLogger(logger),
	)
}
