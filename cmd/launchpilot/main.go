package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	slogger "github.com/ferago/launchpilot/cmd/launchpilot/log"
	"github.com/ferago/launchpilot/internal/capture"
	"github.com/ferago/launchpilot/internal/config"
	"github.com/ferago/launchpilot/internal/event"
	"github.com/ferago/launchpilot/internal/flow"
	"github.com/ferago/launchpilot/internal/input"
	"github.com/ferago/launchpilot/internal/remote/discord"
	"github.com/ferago/launchpilot/internal/utils/winproc"
	"github.com/ferago/launchpilot/internal/vision"
	"github.com/ferago/launchpilot/internal/window"
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, debug.Stack()))
			}
		}()
		return f()
	}
}

func main() {
	cfgPath := flag.String("config", "config/launchpilot.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Startup failure: nothing has touched the screen yet.
		log.Fatalf("Error loading configuration: %s", err.Error())
	}

	logger, err := slogger.NewLogger(cfg.Debug.Log, cfg.LogSaveDirectory)
	if err != nil {
		log.Fatalf("Error starting logger: %s", err.Error())
	}

	// DPI awareness keeps capture pixels and absolute input coordinates in
	// the same space on scaled displays.
	winproc.SetProcessDpiAware.Call()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	listener := event.NewListener(logger)
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifier := discord.NewNotifier(cfg.Discord.WebhookURL, logger)
		listener.Register(notifier.Handle)
	}

	g.Go(wrapWithRecover(logger, func() error {
		return listener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		defer cancel()

		screen := capture.NewScreen()
		library := vision.NewLibrary(cfg.TemplatesDir)
		matcher := vision.NewMatcher(library, logger, cfg.MatchThreshold)
		hid := input.NewHID(logger)
		windows := window.NewManager(logger)
		runner := flow.NewRunner(logger, screen, matcher, hid, windows, cfg)

		launched, err := runner.Login()
		if err != nil {
			return err
		}
		if !launched {
			return nil
		}
		return runner.PostLaunch()
	}))

	if err := g.Wait(); err != nil {
		logger.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}
