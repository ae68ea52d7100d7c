package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferago/launchpilot/internal/event"
	"github.com/ferago/launchpilot/internal/vision"
)

// Template identifiers, resolved against the configured template directory.
const (
	tplDisclaimer     = "disclaimer_accept.png"
	tplLoginButton    = "login_button.png"
	tplHumanCheck     = "human_verify_checkbox.png"
	tplLoginError     = "login_error_page.png"
	tplAuthenticator  = "authenticator_app_button.png"
	tplAccountSelect  = "account_select_button.png"
	tplUserDropdown   = "user_select_label.png"
	tplUserHeader     = "user_select_header.png"
	tplCharacterLabel = "character_select_label.png"
	tplCharacterEntry = "character_select_header.png"
	tplPlay           = "play_button.png"
)

// Thresholds that deviate from the default: the verification checkbox
// renders with partial transparency, so it matches weaker.
const humanCheckFactor = 0.75

// Dropdown entries sit a fixed offset below their detected label/header.
const (
	userEntryOffset      = 20
	characterEntryOffset = 30
)

// Login drives the launcher from whatever screen it is on to the point where
// the game client window exists. It returns launched=false when the client
// was already running and there was nothing to do.
func (r *Runner) Login() (launched bool, err error) {
	if _, ok := r.windows.FindByTitle(r.cfg.GameWindowTitle); ok {
		r.logger.Info("game client already running, nothing to do")
		return false, nil
	}

	event.Send(event.FlowStarted("login"))
	defer func() {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		event.Send(event.FlowFinished("login", err == nil, detail))
	}()

	if _, ok := r.waitForWindow(r.cfg.LauncherWindowTitle, r.timing.LauncherTimeout); !ok {
		return false, fmt.Errorf("launcher window %q never appeared: %w", r.cfg.LauncherWindowTitle, ErrFlowFailed)
	}
	// Give the launcher a moment to fully render.
	r.sleep(2000, 2000)

	s := &session{
		characterName: r.cfg.CharacterName,
		totpSecret:    r.cfg.TotpSecret,
	}

	// The disclaimer probe is the single branch point: present means the
	// session is gone and a full login is needed, absent means the session
	// persisted and only account selection remains.
	needLogin := false
	if _, err := r.locate(tplDisclaimer, 0); err == nil {
		needLogin = true
	} else if errors.Is(err, vision.ErrAsset) {
		return false, fmt.Errorf("login: probe disclaimer: %w", err)
	}

	var steps []Step
	if needLogin {
		r.logger.Info("disclaimer visible, running full login")
		steps = r.fullLoginSteps()
	} else {
		r.logger.Info("no disclaimer, session persisted")
		steps = r.persistedSessionSteps()
	}
	steps = append(steps, r.characterSelectionSteps()...)

	if err := r.runSteps("login", steps, s); err != nil {
		return false, err
	}

	hwnd, ok := r.waitForWindow(r.cfg.GameWindowTitle, r.timing.GameTimeout)
	if !ok {
		return false, fmt.Errorf("game window %q never appeared: %w", r.cfg.GameWindowTitle, ErrFlowFailed)
	}
	r.logger.Info("game client launched")

	// The window exists before the client is actually usable; wait it out,
	// then put it at the canonical geometry.
	r.settle(r.timing.SettleDelay)
	if err := r.windows.Reposition(hwnd, 0, 0, r.cfg.WindowWidth, r.cfg.WindowHeight); err != nil {
		r.logger.Warn("could not reposition game window", slog.Any("error", err))
	}
	return true, nil
}

func (r *Runner) fullLoginSteps() []Step {
	return []Step{
		{
			Name: "dismiss disclaimer", OnError: warnAndContinue,
			Run: func(s *session) error {
				if err := r.waitAndClick(tplDisclaimer, 5*time.Second, 0); err != nil {
					return err
				}
				r.sleep(2000, 2000)
				return nil
			},
		},
		{
			Name: "click login", OnError: warnAndContinue,
			Run: func(s *session) error {
				if err := r.waitAndClick(tplLoginButton, 10*time.Second, 0); err != nil {
					return err
				}
				r.sleep(3000, 3000)
				return nil
			},
		},
		{
			Name: "automated-traffic check", OnError: warnAndContinue,
			Run: func(s *session) error {
				// The challenge takes a few seconds to render; the dwell is
				// randomized so repeated runs do not tick at identical times.
				r.sleep(3200, 3600)
				m, err := r.locate(tplHumanCheck, r.matcher.DefaultThreshold()*humanCheckFactor)
				if err != nil {
					if errors.Is(err, vision.ErrNotFound) {
						r.logger.Info("no verification checkbox visible")
						return nil
					}
					return err
				}
				r.hid.ClickWithin(m.Bounds)
				r.sleep(3000, 3000)
				return nil
			},
		},
		{
			Name: "submit account identifier", OnError: failFlow,
			Run: func(s *session) error {
				r.sleep(1300, 1600)
				r.hid.TypeText(r.cfg.Username)
				r.sleep(200, 400)
				r.hid.PressKey("enter")
				r.sleep(2000, 2000)

				if _, err := r.locate(tplLoginError, 0); err == nil {
					return fmt.Errorf("login page failed to open: %w", ErrFlowFailed)
				} else if errors.Is(err, vision.ErrAsset) {
					return err
				}
				return nil
			},
		},
		{
			Name: "submit credential", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(300, 600)
				r.hid.TypeText(r.cfg.Password)
				r.sleep(200, 400)
				r.hid.PressKey("enter")
				r.sleep(3000, 3000)
				return nil
			},
		},
		{
			Name: "second factor", OnError: failFlow,
			Run:  r.secondFactor,
		},
	}
}

// secondFactor is skipped without error when no secret is configured. A code
// generation failure is fatal: without the code the login cannot complete.
func (r *Runner) secondFactor(s *session) error {
	if s.totpSecret == "" {
		r.logger.Info("no second-factor secret configured, skipping")
		return nil
	}

	r.sleep(2000, 2300)
	if err := r.waitAndClick(tplAuthenticator, 10*time.Second, 0); err != nil {
		if errors.Is(err, vision.ErrAsset) {
			return err
		}
		r.logger.Warn("authenticator entry point not found", slog.Any("error", err))
	}
	r.sleep(2000, 2300)

	code, err := r.totpCode(s.totpSecret)
	if err != nil {
		return fmt.Errorf("one-time code generation: %w: %w", err, ErrFlowFailed)
	}
	r.logger.Info("one-time code generated", slog.String("code", code[:2]+"****"))

	r.hid.TypeText(code)
	r.sleep(200, 400)
	r.hid.PressKey("enter")
	r.sleep(3000, 3000)
	return nil
}

// persistedSessionSteps reselects the stored account. Every sub-step is
// best-effort: the menu may already be in the desired state.
func (r *Runner) persistedSessionSteps() []Step {
	return []Step{
		{
			Name: "open account selector", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(500, 800)
				m, err := r.locate(tplAccountSelect, 0)
				if err != nil {
					return err
				}
				// Remembered so the menu can be closed again afterwards.
				s.accountSelector = m.Center()
				s.hasAccountSelector = true
				r.hid.Click(s.accountSelector.X, s.accountSelector.Y)
				return nil
			},
		},
		{
			Name: "open user dropdown", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(500, 800)
				return r.waitAndClick(tplUserDropdown, 10*time.Second, 0)
			},
		},
		{
			Name: "pick user entry", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(800, 1200)
				m, err := r.locate(tplUserHeader, 0)
				if err != nil {
					return err
				}
				c := m.Center()
				r.hid.Click(c.X, c.Y+userEntryOffset)
				r.sleep(1000, 1000)
				return nil
			},
		},
		{
			Name: "close account selector", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(500, 800)
				if !s.hasAccountSelector {
					return errors.New("no remembered account selector position")
				}
				r.hid.Click(s.accountSelector.X, s.accountSelector.Y)
				r.sleep(500, 500)
				return nil
			},
		},
	}
}

// characterSelectionSteps is the shared tail of both login paths.
func (r *Runner) characterSelectionSteps() []Step {
	return []Step{
		{
			Name: "open character dropdown", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(2000, 2300)
				return r.clickBelow(tplCharacterLabel, characterEntryOffset)
			},
		},
		{
			Name: "pick character entry", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(1500, 1800)
				if err := r.clickBelow(tplCharacterEntry, characterEntryOffset); err != nil {
					return err
				}
				r.sleep(1000, 1000)
				return nil
			},
		},
		{
			Name: "click play", OnError: warnAndContinue,
			Run: func(s *session) error {
				r.sleep(500, 800)
				if err := r.waitAndClick(tplPlay, 10*time.Second, 0); err != nil {
					return err
				}
				r.sleep(3000, 3000)
				return nil
			},
		},
	}
}

// clickBelow clicks a fixed offset below the center of a detected anchor,
// the pattern for dropdowns whose entries have no stable template of their
// own.
func (r *Runner) clickBelow(id string, offset int) error {
	m, err := r.locate(id, 0)
	if err != nil {
		return err
	}
	c := m.Center()
	r.hid.Click(c.X, c.Y+offset)
	return nil
}
