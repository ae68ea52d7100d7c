package flow

import (
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferago/launchpilot/internal/config"
	"github.com/ferago/launchpilot/internal/vision"
)

const (
	launcherTitle = "Launcher"
	gameTitle     = "Game"
	neverAppears  = 1 << 30
)

var allTemplates = []string{
	tplDisclaimer, tplLoginButton, tplHumanCheck, tplLoginError,
	tplAuthenticator, tplAccountSelect, tplUserDropdown, tplUserHeader,
	tplCharacterLabel, tplCharacterEntry, tplPlay,
	tplLicenseAccept, tplClientPlay, tplLobbyEnter, tplNameField, tplNameConfirm,
}

// fakeScreen renders the currently visible templates onto a flat canvas, so
// the real matcher does the recognition work end to end.
type fakeScreen struct {
	tpls     map[string]*image.Gray
	pos      map[string]image.Point
	visible  map[string]bool
	captures int
}

func (f *fakeScreen) Capture() (image.Image, error) {
	f.captures++
	canvas := image.NewGray(image.Rect(0, 0, 260, 200))
	for i := range canvas.Pix {
		canvas.Pix[i] = 128
	}
	for id, on := range f.visible {
		if !on {
			continue
		}
		tpl := f.tpls[id]
		at := f.pos[id]
		for y := 0; y < tpl.Bounds().Dy(); y++ {
			for x := 0; x < tpl.Bounds().Dx(); x++ {
				canvas.SetGray(at.X+x, at.Y+y, tpl.GrayAt(x, y))
			}
		}
	}
	return canvas, nil
}

type fakeInputs struct {
	clicks       []image.Point
	regionClicks []image.Rectangle
	typed        []string
	keys         []string
}

func (f *fakeInputs) Click(x, y int) {
	f.clicks = append(f.clicks, image.Point{X: x, Y: y})
}
func (f *fakeInputs) ClickWithin(r image.Rectangle) { f.regionClicks = append(f.regionClicks, r) }
func (f *fakeInputs) TypeText(text string)          { f.typed = append(f.typed, text) }
func (f *fakeInputs) PressKey(key string)           { f.keys = append(f.keys, key) }

// fakeWindows makes a title visible only after a configured number of
// lookups, so the already-running check and the post-launch wait can be
// steered independently.
type fakeWindows struct {
	appearAfter  map[string]int
	calls        map[string]int
	repositioned []image.Rectangle
}

func (f *fakeWindows) FindByTitle(title string) (uintptr, bool) {
	f.calls[title]++
	if f.calls[title] > f.appearAfter[title] {
		return 42, true
	}
	return 0, false
}

func (f *fakeWindows) Reposition(hwnd uintptr, x, y, w, h int) error {
	f.repositioned = append(f.repositioned, image.Rect(x, y, x+w, y+h))
	return nil
}

type harness struct {
	runner  *Runner
	screen  *fakeScreen
	inputs  *fakeInputs
	windows *fakeWindows
}

func newHarness(t *testing.T, visible ...string) *harness {
	t.Helper()

	dir := t.TempDir()
	tpls := make(map[string]*image.Gray, len(allTemplates))
	pos := make(map[string]image.Point, len(allTemplates))
	for i, id := range allTemplates {
		rng := rand.New(rand.NewSource(int64(i + 1)))
		g := image.NewGray(image.Rect(0, 0, 12, 12))
		for j := range g.Pix {
			g.Pix[j] = byte(rng.Intn(256))
		}
		tpls[id] = g
		pos[id] = image.Point{X: 10 + (i%6)*40, Y: 10 + (i/6)*40}

		f, err := os.Create(filepath.Join(dir, id))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, g); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	screen := &fakeScreen{tpls: tpls, pos: pos, visible: map[string]bool{}}
	for _, id := range visible {
		screen.visible[id] = true
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Username:            "user@example.com",
		Password:            "hunter2",
		TotpSecret:          "JBSWY3DPEHPK3PXP",
		TemplatesDir:        dir,
		MatchThreshold:      0.8,
		LauncherWindowTitle: launcherTitle,
		GameWindowTitle:     gameTitle,
		WindowWidth:         1920,
		WindowHeight:        1080,
	}

	inputs := &fakeInputs{}
	windows := &fakeWindows{
		appearAfter: map[string]int{launcherTitle: 0, gameTitle: 1},
		calls:       map[string]int{},
	}

	matcher := vision.NewMatcher(vision.NewLibrary(dir), logger, cfg.MatchThreshold)
	runner := NewRunner(logger, screen, matcher, inputs, windows, cfg)
	runner.sleep = func(minMs, maxMs int) {}
	runner.timing = Timing{
		PollInterval:    2 * time.Millisecond,
		LauncherTimeout: 100 * time.Millisecond,
		GameTimeout:     300 * time.Millisecond,
		SettleDelay:     0,
	}
	runner.totpCode = func(secret string) (string, error) { return "123456", nil }

	return &harness{runner: runner, screen: screen, inputs: inputs, windows: windows}
}

func (h *harness) center(id string) image.Point {
	p := h.screen.pos[id]
	return image.Point{X: p.X + 6, Y: p.Y + 6}
}

func (h *harness) clickCount(p image.Point) int {
	n := 0
	for _, c := range h.inputs.clicks {
		if c == p {
			n++
		}
	}
	return n
}

func without(ids []string, excluded ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		skip := false
		for _, e := range excluded {
			if id == e {
				skip = true
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}

func TestLoginFullPath(t *testing.T) {
	h := newHarness(t, without(allTemplates, tplLoginError)...)

	launched, err := h.runner.Login()
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !launched {
		t.Fatal("expected the client to be launched")
	}

	want := []string{"user@example.com", "hunter2", "123456"}
	if len(h.inputs.typed) != len(want) {
		t.Fatalf("typed %v, want %v", h.inputs.typed, want)
	}
	for i := range want {
		if h.inputs.typed[i] != want[i] {
			t.Errorf("typed[%d] = %q, want %q", i, h.inputs.typed[i], want[i])
		}
	}

	// Every typed field is submitted with the return key.
	enters := 0
	for _, k := range h.inputs.keys {
		if k == "enter" {
			enters++
		}
	}
	if enters != 3 {
		t.Errorf("pressed enter %d times, want 3", enters)
	}

	// The verification checkbox is clicked somewhere within its bounds, not
	// at a fixed pixel.
	if len(h.inputs.regionClicks) != 1 {
		t.Fatalf("region clicks %v, want exactly one", h.inputs.regionClicks)
	}
	wantBounds := image.Rectangle{Min: h.screen.pos[tplHumanCheck]}
	wantBounds.Max = wantBounds.Min.Add(image.Point{X: 12, Y: 12})
	if h.inputs.regionClicks[0] != wantBounds {
		t.Errorf("region click on %v, want %v", h.inputs.regionClicks[0], wantBounds)
	}

	if len(h.windows.repositioned) != 1 {
		t.Fatalf("repositioned %v, want exactly one", h.windows.repositioned)
	}
	if got := h.windows.repositioned[0]; got != image.Rect(0, 0, 1920, 1080) {
		t.Errorf("repositioned to %v", got)
	}

	// Dropdown entries are clicked below their detected anchors.
	userEntry := h.center(tplUserHeader).Add(image.Point{Y: userEntryOffset})
	if h.clickCount(userEntry) != 0 {
		t.Error("full login should not touch the account selector path")
	}
	charEntry := h.center(tplCharacterEntry).Add(image.Point{Y: characterEntryOffset})
	if h.clickCount(charEntry) != 1 {
		t.Errorf("character entry clicked %d times, want 1", h.clickCount(charEntry))
	}
}

func TestLoginPersistedSession(t *testing.T) {
	h := newHarness(t, without(allTemplates, tplDisclaimer, tplLoginError)...)

	launched, err := h.runner.Login()
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !launched {
		t.Fatal("expected the client to be launched")
	}

	if len(h.inputs.typed) != 0 {
		t.Errorf("persisted session typed %v, credentials must never be re-entered", h.inputs.typed)
	}

	// The account selector is opened and closed again at the remembered
	// position.
	if n := h.clickCount(h.center(tplAccountSelect)); n != 2 {
		t.Errorf("account selector clicked %d times, want 2", n)
	}
	userEntry := h.center(tplUserHeader).Add(image.Point{Y: userEntryOffset})
	if h.clickCount(userEntry) != 1 {
		t.Errorf("user entry clicked %d times, want 1", h.clickCount(userEntry))
	}
	if h.clickCount(h.center(tplPlay)) != 1 {
		t.Error("play button not clicked")
	}
}

func TestLoginAbortsOnErrorScreen(t *testing.T) {
	h := newHarness(t, allTemplates...)

	launched, err := h.runner.Login()
	if !errors.Is(err, ErrFlowFailed) {
		t.Fatalf("expected ErrFlowFailed, got %v", err)
	}
	if launched {
		t.Fatal("a failed login must not report a launch")
	}

	// Only the account identifier went in before the error screen was seen.
	if len(h.inputs.typed) != 1 || h.inputs.typed[0] != "user@example.com" {
		t.Errorf("typed %v, want only the account identifier", h.inputs.typed)
	}
	if len(h.windows.repositioned) != 0 {
		t.Error("window repositioned despite failed login")
	}
}

func TestLoginSkipsWhenGameAlreadyRunning(t *testing.T) {
	h := newHarness(t, allTemplates...)
	h.windows.appearAfter[gameTitle] = 0

	launched, err := h.runner.Login()
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if launched {
		t.Fatal("running client must be reported as launched=false")
	}
	if h.screen.captures != 0 {
		t.Errorf("captured %d frames, the screen must not be touched", h.screen.captures)
	}
	if len(h.inputs.clicks) != 0 {
		t.Errorf("clicked %v, input must not be touched", h.inputs.clicks)
	}
}

func TestLoginFailsWhenLauncherNeverAppears(t *testing.T) {
	h := newHarness(t, allTemplates...)
	h.windows.appearAfter[launcherTitle] = neverAppears
	h.windows.appearAfter[gameTitle] = neverAppears

	launched, err := h.runner.Login()
	if !errors.Is(err, ErrFlowFailed) {
		t.Fatalf("expected ErrFlowFailed, got %v", err)
	}
	if launched {
		t.Fatal("launched must be false")
	}
}

func TestLoginFailsWhenGameWindowNeverAppears(t *testing.T) {
	h := newHarness(t, without(allTemplates, tplLoginError)...)
	h.windows.appearAfter[gameTitle] = neverAppears

	_, err := h.runner.Login()
	if !errors.Is(err, ErrFlowFailed) {
		t.Fatalf("expected ErrFlowFailed, got %v", err)
	}
	if len(h.windows.repositioned) != 0 {
		t.Error("nothing should be repositioned when the window never shows")
	}
}

func TestLoginSecondFactorSkippedWithoutSecret(t *testing.T) {
	h := newHarness(t, without(allTemplates, tplLoginError)...)
	h.runner.cfg.TotpSecret = ""
	h.runner.totpCode = func(secret string) (string, error) {
		t.Error("code generation must not run without a secret")
		return "", nil
	}

	launched, err := h.runner.Login()
	if err != nil || !launched {
		t.Fatalf("login: launched=%v err=%v", launched, err)
	}
	want := []string{"user@example.com", "hunter2"}
	if len(h.inputs.typed) != len(want) {
		t.Fatalf("typed %v, want %v", h.inputs.typed, want)
	}
}

func TestPostLaunchWithNameEntry(t *testing.T) {
	h := newHarness(t, tplLicenseAccept, tplClientPlay, tplLobbyEnter, tplNameField)
	h.runner.cfg.CharacterName = "Newbie"

	if err := h.runner.PostLaunch(); err != nil {
		t.Fatalf("post-launch failed: %v", err)
	}

	if len(h.inputs.typed) != 1 || h.inputs.typed[0] != "Newbie" {
		t.Errorf("typed %v, want the display name", h.inputs.typed)
	}
	// The confirm button never shows up, so the fallback submit key is used.
	if len(h.inputs.keys) != 1 || h.inputs.keys[0] != "enter" {
		t.Errorf("keys %v, want the fallback enter press", h.inputs.keys)
	}

	for _, id := range []string{tplLicenseAccept, tplClientPlay, tplLobbyEnter, tplNameField} {
		if h.clickCount(h.center(id)) != 1 {
			t.Errorf("%s clicked %d times, want 1", id, h.clickCount(h.center(id)))
		}
	}
}

func TestPostLaunchSkipsAbsentScreens(t *testing.T) {
	h := newHarness(t, tplClientPlay)

	if err := h.runner.PostLaunch(); err != nil {
		t.Fatalf("post-launch failed: %v", err)
	}
	if n := h.clickCount(h.center(tplClientPlay)); n != 1 {
		t.Errorf("client play clicked %d times, want 1", n)
	}
	if len(h.inputs.typed) != 0 || len(h.inputs.keys) != 0 {
		t.Errorf("typed %v keys %v, nothing should be entered", h.inputs.typed, h.inputs.keys)
	}
}
