// Command kmsplay takes over every active display and runs a test
// animation on it, hardware-paced, until interrupted or until escape or q
// is pressed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kmsplay"
	"github.com/BeatGlow/kmsplay/anim"
	"github.com/BeatGlow/kmsplay/internal/input"
)

func main() {
	var (
		device   = flag.String("device", "", "display device node (default: probe /dev/dri)")
		depth    = flag.Int("buffers", kmsplay.DefaultQueueDepth, "buffers per output")
		noFences = flag.Bool("no-fences", false, "disable explicit fencing")
		debug    = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "kmsplay",
	})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	dev, err := kmsplay.Discover(kmsplay.Options{
		DevicePath:     *device,
		DisableFencing: *noFences,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("no display to drive", "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	if err := dev.AllocateBuffers(*depth); err != nil {
		logger.Error("buffer allocation failed", "err", err)
		dev.Close()
		os.Exit(2)
	}

	keys := input.Open(dev.AcquireDevice)
	defer keys.Close()
	if keys.Devices() == 0 {
		logger.Debug("no input devices, interrupt signal is the only exit")
	}

	sched := kmsplay.NewScheduler(dev)
	sched.Render = kmsplay.SoftwareRenderer(anim.New(kmsplay.AnimationFrames))
	sched.CancelRequested = keys.QuitRequested

	if err := sched.Run(ctx); err != nil {
		logger.Error("display loop failed", "err", err)
		dev.Close()
		os.Exit(3)
	}
	logger.Info("good-bye")
}
