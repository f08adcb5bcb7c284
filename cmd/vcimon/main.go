// Command vcimon serves the CAN monitor console over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/LoveWonYoung/vcimon/config"
	"github.com/LoveWonYoung/vcimon/console"
	"github.com/LoveWonYoung/vcimon/driver"
	"github.com/LoveWonYoung/vcimon/logrecorder"
	"github.com/LoveWonYoung/vcimon/receiver"
	"github.com/LoveWonYoung/vcimon/session"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	mock := pflag.Bool("mock", false, "use the in-memory adapter instead of the vendor library")
	writeConfig := pflag.String("write-config", "", "write the effective config to this path and exit")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mock {
		cfg.Driver.Mock = true
	}

	if *writeConfig != "" {
		if err := cfg.WriteFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *writeConfig)
		return
	}

	logger, syncLog, err := logrecorder.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLog()

	vci, unload, err := openDriver(cfg.Driver, logger)
	if err != nil {
		logger.Fatal("Failed to load VCI library",
			zap.String("library", cfg.Driver.Library),
			zap.Error(err))
	}
	defer unload()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(vci, logger)
	rx := receiver.New(vci, cfg.Receiver, logger)

	if cfg.Capture.Enabled {
		rec, err := logrecorder.NewFrameRecorder(cfg.Log.Dir, cfg.Capture.Prefix, logger)
		if err != nil {
			logger.Fatal("Failed to start frame capture", zap.Error(err))
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("Failed to close capture file", zap.Error(err))
			}
			logger.Info("Frame capture closed",
				zap.String("file", rec.Name()),
				zap.Int("frames", rec.Count()))
		}()
		rx.SetFrameHook(rec.Hook())
		go flushCapture(ctx, rec, cfg.Console.Tick, logger)
	}

	app := console.NewApp(sess, rx, console.Options{
		Handle:     cfg.Device.Handle(),
		CAN1:       cfg.Device.CAN1,
		CAN2:       cfg.Device.CAN2,
		Baud:       cfg.Device.Baud,
		BufferSize: cfg.Console.BufferSize,
	}, logger)

	srv := console.NewServer(cfg.Console, app, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start console server", zap.Error(err))
	}

	logger.Info("Console ready",
		zap.String("listen", cfg.Console.Listen),
		zap.Bool("mock", cfg.Driver.Mock))
	srv.Run(ctx)

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Console.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Console server shutdown error", zap.Error(err))
	}
	app.Shutdown()
	if err := rx.Wait(shutdownCtx); err != nil {
		logger.Warn("Receive loop did not exit in time", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// flushCapture pushes buffered capture records to disk once per tick.
func flushCapture(ctx context.Context, rec *logrecorder.FrameRecorder, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rec.Flush(); err != nil {
				logger.Warn("Capture flush failed", zap.Error(err))
			}
		}
	}
}

// openDriver returns a serialized VCI and the func that releases it.
func openDriver(cfg config.DriverConfig, logger *zap.Logger) (driver.VCI, func(), error) {
	if cfg.Mock {
		m := driver.NewMock()
		m.SetLogger(logger.Named("mock"))
		m.SetRecordCalls(false)
		m.SetLoopback(true)
		return driver.Serialized(m), func() {}, nil
	}

	lib, err := driver.Load(cfg.Library)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("VCI library loaded", zap.String("path", lib.Path()))
	return driver.Serialized(lib), func() {
		if err := lib.Close(); err != nil {
			logger.Warn("Failed to unload VCI library", zap.Error(err))
		}
	}, nil
}
