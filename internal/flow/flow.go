// Package flow sequences the onboarding screens: it decides what is on
// screen via template matching and reacts with humanized input, one step at a
// time. Each flow runs exactly once per invocation on a single goroutine.
package flow

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/ferago/launchpilot/internal/config"
	"github.com/ferago/launchpilot/internal/event"
	"github.com/ferago/launchpilot/internal/otp"
	"github.com/ferago/launchpilot/internal/utils"
	"github.com/ferago/launchpilot/internal/vision"
)

// ErrFlowFailed marks an unrecoverable flow outcome: an essential anchor
// never appeared or a known error screen was detected. The process exits
// non-zero when a flow fails.
var ErrFlowFailed = errors.New("flow failed")

// Screen produces a fresh snapshot of the desktop on every call.
type Screen interface {
	Capture() (image.Image, error)
}

// Matcher locates a template inside a frame. threshold <= 0 selects the
// matcher's default.
type Matcher interface {
	Find(frame image.Image, id string, threshold float64) (vision.Match, error)
	DefaultThreshold() float64
}

// Inputs is the humanized input capability the flows drive.
type Inputs interface {
	Click(x, y int)
	ClickWithin(r image.Rectangle)
	TypeText(text string)
	PressKey(key string)
}

// Windows looks up top-level windows by title and repositions them.
type Windows interface {
	FindByTitle(title string) (uintptr, bool)
	Reposition(hwnd uintptr, x, y, width, height int) error
}

// Timing bounds every wait in the flows. Values are fixed per run; tests
// shrink them to keep scenarios fast.
type Timing struct {
	PollInterval    time.Duration
	LauncherTimeout time.Duration
	GameTimeout     time.Duration
	SettleDelay     time.Duration
}

func defaultTiming(cfg config.Config) Timing {
	return Timing{
		PollInterval:    time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		LauncherTimeout: 60 * time.Second,
		GameTimeout:     300 * time.Second,
		SettleDelay:     20 * time.Second,
	}
}

// policy decides what a step failure does to the rest of the flow.
type policy int

const (
	// warnAndContinue logs the failure and moves on: the UI may already be
	// in the state the step would have produced.
	warnAndContinue policy = iota
	// failFlow aborts the whole flow.
	failFlow
)

// Step is one named unit of work. Steps are immutable descriptors; the
// runner executes them in order, never concurrently.
type Step struct {
	Name    string
	Run     func(s *session) error
	OnError policy
}

// session is the mutable state threaded through a single flow run. It is
// created at flow start and discarded at flow end, never shared.
type session struct {
	accountSelector    image.Point
	hasAccountSelector bool
	characterName      string
	totpSecret         string
}

// Runner owns the capabilities and executes the two flows.
type Runner struct {
	logger  *slog.Logger
	screen  Screen
	matcher Matcher
	hid     Inputs
	windows Windows
	cfg     config.Config
	timing  Timing

	// sleep and totpCode are swappable for tests.
	sleep    func(minMs, maxMs int)
	totpCode func(secret string) (string, error)
}

func NewRunner(logger *slog.Logger, screen Screen, matcher Matcher, hid Inputs, windows Windows, cfg config.Config) *Runner {
	return &Runner{
		logger:   logger,
		screen:   screen,
		matcher:  matcher,
		hid:      hid,
		windows:  windows,
		cfg:      cfg,
		timing:   defaultTiming(cfg),
		sleep:    utils.SleepRange,
		totpCode: otp.Code,
	}
}

func (r *Runner) runSteps(flowName string, steps []Step, s *session) error {
	for _, st := range steps {
		r.logger.Info("step", slog.String("flow", flowName), slog.String("name", st.Name))
		err := st.Run(s)
		if err == nil {
			continue
		}
		// A broken or missing template asset is a packaging defect, fatal
		// regardless of the step's own policy.
		if errors.Is(err, vision.ErrAsset) || st.OnError == failFlow {
			return fmt.Errorf("%s: %s: %w", flowName, st.Name, err)
		}
		r.logger.Warn("step failed, continuing",
			slog.String("flow", flowName),
			slog.String("name", st.Name),
			slog.Any("error", err),
		)
		event.Send(event.StepWarning(flowName, st.Name, err.Error()))
	}
	return nil
}

// poll repeats attempt at a fixed cadence until it succeeds or the timeout
// elapses. Total elapsed time never exceeds the timeout by more than one
// interval. What a timeout means is the caller's decision.
func poll(timeout, interval time.Duration, attempt func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if attempt() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}

// locate captures a frame and matches the template in it. A capture failure
// yields no information for this cycle and is reported as a non-match.
func (r *Runner) locate(id string, threshold float64) (vision.Match, error) {
	frame, err := r.screen.Capture()
	if err != nil {
		r.logger.Warn("capture failed", slog.Any("error", err))
		return vision.Match{}, vision.ErrNotFound
	}
	return r.matcher.Find(frame, id, threshold)
}

// waitAndClick polls for the template and clicks its center as soon as it
// appears. Asset errors abort the wait immediately.
func (r *Runner) waitAndClick(id string, timeout time.Duration, threshold float64) error {
	var assetErr error
	ok := poll(timeout, r.timing.PollInterval, func() bool {
		m, err := r.locate(id, threshold)
		if err != nil {
			if errors.Is(err, vision.ErrAsset) {
				assetErr = err
				return true
			}
			return false
		}
		c := m.Center()
		r.logger.Info("found, clicking", slog.String("template", id), slog.Int("x", c.X), slog.Int("y", c.Y))
		r.hid.Click(c.X, c.Y)
		return true
	})
	if assetErr != nil {
		return assetErr
	}
	if !ok {
		return fmt.Errorf("%q did not appear within %s", id, timeout)
	}
	return nil
}

// waitForWindow polls the window query until the title shows up.
func (r *Runner) waitForWindow(title string, timeout time.Duration) (uintptr, bool) {
	var hwnd uintptr
	found := poll(timeout, r.timing.PollInterval, func() bool {
		h, ok := r.windows.FindByTitle(title)
		if ok {
			hwnd = h
		}
		return ok
	})
	return hwnd, found
}

func (r *Runner) settle(d time.Duration) {
	ms := int(d.Milliseconds())
	r.sleep(ms, ms)
}
