package flow

import (
	"errors"
	"time"

	"github.com/ferago/launchpilot/internal/event"
	"github.com/ferago/launchpilot/internal/vision"
)

const (
	tplLicenseAccept = "license_accept_button.png"
	tplClientPlay    = "client_play_button.png"
	tplLobbyEnter    = "lobby_enter_world.png"
	tplNameField     = "name_entry_field.png"
	tplNameConfirm   = "name_confirm_button.png"
)

// The client play button carries the account's display name, so it never
// matches as strongly as static elements. The lobby screen has animated
// background behind its button.
const (
	clientPlayThreshold = 0.6
	lobbyThreshold      = 0.7
)

const (
	lobbyAttempts     = 6
	lobbyAttemptDelay = 2500 // ms
)

// PostLaunch handles the client's own pre-game screens once its window
// exists: license acceptance, the client play button, the lobby, and display
// name entry for fresh accounts. Everything here is best-effort; the only
// fatal outcome is a broken template asset.
func (r *Runner) PostLaunch() (err error) {
	event.Send(event.FlowStarted("post-launch"))
	defer func() {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		event.Send(event.FlowFinished("post-launch", err == nil, detail))
	}()

	// The window appears long before the UI is interactive.
	r.settle(r.timing.SettleDelay)

	s := &session{characterName: r.cfg.CharacterName}
	return r.runSteps("post-launch", r.postLaunchSteps(), s)
}

func (r *Runner) postLaunchSteps() []Step {
	return []Step{
		{
			// One attempt only: the license screen shows up for new installs
			// and upgrades, most runs never see it.
			Name: "accept license", OnError: warnAndContinue,
			Run: func(s *session) error {
				m, err := r.locate(tplLicenseAccept, 0)
				if err != nil {
					if errors.Is(err, vision.ErrNotFound) {
						r.logger.Info("no license screen visible")
						return nil
					}
					return err
				}
				c := m.Center()
				r.hid.Click(c.X, c.Y)
				r.sleep(1000, 1000)
				return nil
			},
		},
		{
			Name: "click client play", OnError: warnAndContinue,
			Run: func(s *session) error {
				if err := r.waitAndClick(tplClientPlay, 30*time.Second, clientPlayThreshold); err != nil {
					return err
				}
				r.sleep(5000, 5000)
				return nil
			},
		},
		{
			Name: "enter world from lobby", OnError: warnAndContinue,
			Run:  r.enterWorld,
		},
		{
			Name: "enter display name", OnError: warnAndContinue,
			Run:  r.enterDisplayName,
		},
	}
}

// enterWorld retries a bounded number of times because the lobby takes a
// variable moment to appear, and some accounts skip it entirely.
func (r *Runner) enterWorld(s *session) error {
	r.sleep(3000, 3000)
	for attempt := 0; attempt < lobbyAttempts; attempt++ {
		m, err := r.locate(tplLobbyEnter, lobbyThreshold)
		if err == nil {
			c := m.Center()
			r.hid.Click(c.X, c.Y)
			r.sleep(3000, 3000)
			return nil
		}
		if errors.Is(err, vision.ErrAsset) {
			return err
		}
		r.sleep(lobbyAttemptDelay, lobbyAttemptDelay)
	}
	r.logger.Info("no lobby screen detected")
	return nil
}

// enterDisplayName only runs when a name was supplied; a missing name-entry
// screen is normal for established accounts.
func (r *Runner) enterDisplayName(s *session) error {
	if s.characterName == "" {
		r.logger.Info("no display name configured, skipping name entry")
		return nil
	}

	r.sleep(3000, 3000)
	m, err := r.locate(tplNameField, 0)
	if err != nil {
		if errors.Is(err, vision.ErrNotFound) {
			r.logger.Info("no name entry screen visible")
			return nil
		}
		return err
	}

	c := m.Center()
	r.hid.Click(c.X, c.Y)
	r.sleep(500, 500)
	r.hid.TypeText(s.characterName)
	r.sleep(500, 500)

	// Prefer the confirm control; fall back to the submit key when it does
	// not show up in time.
	if err := r.waitAndClick(tplNameConfirm, 5*time.Second, 0); err != nil {
		if errors.Is(err, vision.ErrAsset) {
			return err
		}
		r.hid.PressKey("enter")
	}
	r.sleep(2000, 2000)
	return nil
}
