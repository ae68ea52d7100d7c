package vision

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
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// randomPattern builds a high-variance grayscale patch so that correlation
// against anything but itself stays low.
func randomPattern(seed int64, w, h int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = byte(rng.Intn(256))
	}
	return g
}

func writePNG(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// paste copies src into dst at the given offset.
func paste(dst *image.Gray, src *image.Gray, at image.Point) {
	for y := 0; y < src.Bounds().Dy(); y++ {
		for x := 0; x < src.Bounds().Dx(); x++ {
			dst.SetGray(at.X+x, at.Y+y, src.GrayAt(x, y))
		}
	}
}

func TestFindVerbatimTemplate(t *testing.T) {
	dir := t.TempDir()
	tpl := randomPattern(1, 12, 12)
	writePNG(t, dir, "button.png", tpl)

	frame := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	paste(frame, tpl, image.Point{X: 20, Y: 10})

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)

	for _, threshold := range []float64{0.5, 0.8, 0.999} {
		match, err := m.Find(frame, "button.png", threshold)
		if err != nil {
			t.Fatalf("threshold %v: %v", threshold, err)
		}
		if match.Score < threshold {
			t.Errorf("threshold %v: score %v below threshold", threshold, match.Score)
		}
		if match.Bounds.Min != (image.Point{X: 20, Y: 10}) {
			t.Errorf("match at %v, want (20,10)", match.Bounds.Min)
		}
		if c := match.Center(); c != (image.Point{X: 26, Y: 16}) {
			t.Errorf("center %v, want (26,16)", c)
		}
	}
}

func TestFindAbsentTemplate(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "button.png", randomPattern(1, 12, 12))

	// A frame holding a different pattern on a flat background.
	frame := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	paste(frame, randomPattern(2, 12, 12), image.Point{X: 20, Y: 10})

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)
	match, err := m.Find(frame, "button.png", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if match.Score >= 0.8 {
		t.Errorf("absent template scored %v", match.Score)
	}
}

// A frame this size forces the pyramid search; the match must still land on
// the exact position and score like the exhaustive path.
func TestFindVerbatimTemplateLargeFrame(t *testing.T) {
	dir := t.TempDir()
	tpl := randomPattern(7, 64, 48)
	writePNG(t, dir, "panel.png", tpl)

	frame := image.NewGray(image.Rect(0, 0, 800, 600))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	paste(frame, tpl, image.Point{X: 300, Y: 200})

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)
	match, err := m.Find(frame, "panel.png", 0.9)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if match.Bounds.Min != (image.Point{X: 300, Y: 200}) {
		t.Errorf("match at %v, want (300,200)", match.Bounds.Min)
	}
	if match.Score < 0.9 {
		t.Errorf("score %v, want >= 0.9", match.Score)
	}
}

func TestFindAbsentTemplateLargeFrame(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "panel.png", randomPattern(7, 64, 48))

	frame := image.NewGray(image.Rect(0, 0, 800, 600))
	for i := range frame.Pix {
		frame.Pix[i] = 128
	}
	paste(frame, randomPattern(9, 64, 48), image.Point{X: 300, Y: 200})

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)
	if _, err := m.Find(frame, "panel.png", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownsampleAverages(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 2))
	copy(g.Pix, []byte{10, 20, 30, 40, 50, 60, 70, 80})

	d := downsample(g)
	if d.Bounds().Dx() != 2 || d.Bounds().Dy() != 1 {
		t.Fatalf("downsampled to %v, want 2x1", d.Bounds())
	}
	if d.Pix[0] != 35 || d.Pix[1] != 55 {
		t.Errorf("box averages %v, want [35 55]", d.Pix[:2])
	}
}

func TestFindMissingAsset(t *testing.T) {
	m := NewMatcher(NewLibrary(t.TempDir()), discardLogger(), 0.8)
	_, err := m.Find(image.NewGray(image.Rect(0, 0, 32, 32)), "nope.png", 0)
	if !errors.Is(err, ErrAsset) {
		t.Fatalf("expected ErrAsset for missing file, got %v", err)
	}
}

func TestFindUndecodableAsset(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)
	_, err := m.Find(image.NewGray(image.Rect(0, 0, 32, 32)), "bad.png", 0)
	if !errors.Is(err, ErrAsset) {
		t.Fatalf("expected ErrAsset for undecodable file, got %v", err)
	}
}

func TestFindTemplateLargerThanFrame(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "big.png", randomPattern(1, 48, 48))

	m := NewMatcher(NewLibrary(dir), discardLogger(), 0.8)
	_, err := m.Find(image.NewGray(image.Rect(0, 0, 32, 32)), "big.png", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLibraryCachesTemplates(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "button.png", randomPattern(1, 12, 12))

	lib := NewLibrary(dir)
	first, err := lib.Template("button.png")
	if err != nil {
		t.Fatal(err)
	}
	second, err := lib.Template("button.png")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("repeated lookups should return the cached image")
	}
}
