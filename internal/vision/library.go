package vision

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
	"path/filepath"
)

// ErrAsset marks a template that is missing from the store or cannot be
// decoded. This is a packaging defect, distinct from the template simply not
// being visible on screen, and is never retried.
var ErrAsset = errors.New("template asset unavailable")

// Library resolves template identifiers to their reference images. Images are
// loaded lazily from a directory of named files and cached as grayscale, so a
// template's pixel dimensions are stable for the lifetime of the run.
type Library struct {
	dir   string
	cache map[string]*image.Gray
}

func NewLibrary(dir string) *Library {
	return &Library{
		dir:   dir,
		cache: make(map[string]*image.Gray),
	}
}

// Template returns the grayscale reference image for the given identifier.
func (l *Library) Template(id string) (*image.Gray, error) {
	if tpl, ok := l.cache[id]; ok {
		return tpl, nil
	}

	path := filepath.Join(l.dir, id)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAsset, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrAsset, path, err)
	}

	tpl := Grayscale(img)
	l.cache[id] = tpl
	return tpl, nil
}

// Grayscale converts an image to a single-channel intensity representation.
// Matching in grayscale keeps it robust to minor color-rendering differences
// between the stored templates and the live screen.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
