// Command vcimon-headless opens the adapter at the configured baud rate and
// prints every received frame to stdout until interrupted.
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

	"github.com/LoveWonYoung/vcimon/buffer"
	"github.com/LoveWonYoung/vcimon/config"
	"github.com/LoveWonYoung/vcimon/driver"
	"github.com/LoveWonYoung/vcimon/logrecorder"
	"github.com/LoveWonYoung/vcimon/receiver"
	"github.com/LoveWonYoung/vcimon/session"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	mock := pflag.Bool("mock", false, "use the in-memory adapter")
	baudName := pflag.String("baud", "", `baud rate label, e.g. "500 Kbps" (overrides device.baud)`)
	capture := pflag.Bool("capture", false, "record frames to a CBOR capture file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mock {
		cfg.Driver.Mock = true
	}
	if *capture {
		cfg.Capture.Enabled = true
	}
	if *baudName != "" {
		i, _, err := driver.BaudRateByName(*baudName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		cfg.Device.Baud = i
	}

	logger, syncLog, err := logrecorder.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("Monitor stopped", zap.Error(err))
		syncLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	var vci driver.VCI
	if cfg.Driver.Mock {
		m := driver.NewMock()
		m.SetLogger(logger.Named("mock"))
		m.SetRecordCalls(false)
		vci = m
	} else {
		lib, err := driver.Load(cfg.Driver.Library)
		if err != nil {
			logger.Fatal("Failed to load VCI library",
				zap.String("library", cfg.Driver.Library),
				zap.Error(err))
		}
		defer lib.Close()
		vci = lib
	}
	vci = driver.Serialized(vci)

	h := cfg.Device.Handle()
	rate, err := driver.BaudRateAt(cfg.Device.Baud)
	if err != nil {
		return err
	}

	sess := session.New(vci, logger)
	if err := sess.ApplyBaud(h, cfg.Device.CAN1, cfg.Device.CAN2, rate); err != nil {
		sess.Close(h)
		return err
	}
	defer sess.Close(h)

	if info, err := sess.ReadBoardInfo(h); err == nil {
		fmt.Printf("Adapter %s\n", info)
	} else {
		logger.Warn("Board info unavailable", zap.Error(err))
	}

	rx := receiver.New(vci, cfg.Receiver, logger)
	var rec *logrecorder.FrameRecorder
	if cfg.Capture.Enabled {
		rec, err = logrecorder.NewFrameRecorder(cfg.Log.Dir, cfg.Capture.Prefix, logger)
		if err != nil {
			return err
		}
		defer rec.Close()
		rx.SetFrameHook(rec.Hook())
	}

	lines := buffer.NewQueue()
	if err := rx.Start(h, lines); err != nil {
		return err
	}
	fmt.Printf("Receiving on channel %d at %s, Ctrl-C to stop\n", h.Channel, rate.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Console.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			rx.Stop()
			waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Console.ShutdownTimeout)
			err := rx.Wait(waitCtx)
			cancel()
			printLines(lines.Drain())
			st := rx.Stats()
			logger.Info("Monitor finished",
				zap.Uint64("frames", st.Frames),
				zap.Uint64("polls", st.Polls),
				zap.Uint64("errors", st.Errors))
			return err
		case <-ticker.C:
			printLines(lines.Drain())
			if rec != nil {
				if err := rec.Flush(); err != nil {
					logger.Warn("Capture flush failed", zap.Error(err))
				}
			}
		}
	}
}

func printLines(lines []string) {
	for _, l := range lines {
		fmt.Println(l)
	}
}
