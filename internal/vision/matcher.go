package vision

import (
	"errors"
	"image"
	"log/slog"
	"math"
)

// ErrNotFound means the template is not currently visible on screen with the
// requested confidence. It drives poll-loop retries and is never fatal by
// itself.
var ErrNotFound = errors.New("template not found on screen")

// Match is the single best correlation result for a template over a frame.
type Match struct {
	Score  float64
	Bounds image.Rectangle
}

// Center returns the midpoint of the matched region, the usual click target.
func (m Match) Center() image.Point {
	return image.Point{
		X: m.Bounds.Min.X + m.Bounds.Dx()/2,
		Y: m.Bounds.Min.Y + m.Bounds.Dy()/2,
	}
}

// Matcher locates known UI elements inside captured frames using zero-mean
// normalized cross-correlation over grayscale pixels. Only the global maximum
// is considered; multi-instance detection is deliberately out of scope.
type Matcher struct {
	lib       *Library
	logger    *slog.Logger
	threshold float64
}

func NewMatcher(lib *Library, logger *slog.Logger, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Matcher{lib: lib, logger: logger, threshold: threshold}
}

// DefaultThreshold returns the acceptance threshold used when a call site
// passes threshold <= 0.
func (m *Matcher) DefaultThreshold() float64 {
	return m.threshold
}

// Find looks the template up in the library and correlates it over the frame.
// It returns ErrNotFound when the best score is below the threshold, and an
// ErrAsset-wrapped error when the template itself cannot be loaded. The
// returned Match carries the best score even on ErrNotFound so callers can
// log it.
func (m *Matcher) Find(frame image.Image, id string, threshold float64) (Match, error) {
	if threshold <= 0 {
		threshold = m.threshold
	}

	tpl, err := m.lib.Template(id)
	if err != nil {
		return Match{}, err
	}

	gray := Grayscale(frame)
	tw, th := tpl.Bounds().Dx(), tpl.Bounds().Dy()
	fw, fh := gray.Bounds().Dx(), gray.Bounds().Dy()
	if tw > fw || th > fh || tw == 0 || th == 0 {
		return Match{}, ErrNotFound
	}

	score, loc := correlate(gray, tpl)
	m.logger.Debug("template match",
		slog.String("template", id),
		slog.Float64("score", score),
		slog.Float64("threshold", threshold),
	)

	match := Match{
		Score:  score,
		Bounds: image.Rect(loc.X, loc.Y, loc.X+tw, loc.Y+th),
	}
	if score < threshold {
		return Match{Score: score}, ErrNotFound
	}
	return match, nil
}

// correlateBudget caps the offsets×template-pixels work of an exhaustive
// search. A budget this size finishes in tens of milliseconds, leaving the
// bulk of a 500 ms poll interval untouched.
const correlateBudget = 1 << 25

// coarseMinDim stops the pyramid from shrinking a template below the point
// where its coarse correlation peak drowns in noise.
const coarseMinDim = 6

// refineMargin is the half-width, in full-resolution pixels, of the exact
// re-scoring neighborhood around an upscaled coarse peak.
const refineMargin = 8

// correlate returns the best zero-mean normalized cross-correlation of the
// template over the frame together with its top-left position. Searches
// within the budget run exhaustively; larger ones recurse on half-resolution
// box-averaged copies and re-score exactly only around the coarse peak, so a
// full-desktop frame matches well inside one poll interval.
func correlate(frame, tpl *image.Gray) (float64, image.Point) {
	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	tw, th := tpl.Bounds().Dx(), tpl.Bounds().Dy()
	all := image.Rect(0, 0, fw-tw+1, fh-th+1)

	cost := all.Dx() * all.Dy() * tw * th
	if cost <= correlateBudget || tw/2 < coarseMinDim || th/2 < coarseMinDim {
		return correlateRegion(frame, tpl, all)
	}

	score, loc := correlate(downsample(frame), downsample(tpl))
	if score <= 0 {
		// Nothing to refine: the template flattened out at half resolution.
		return correlateRegion(frame, tpl, all)
	}
	region := image.Rect(
		2*loc.X-refineMargin, 2*loc.Y-refineMargin,
		2*loc.X+refineMargin+1, 2*loc.Y+refineMargin+1,
	).Intersect(all)
	if region.Empty() {
		return correlateRegion(frame, tpl, all)
	}
	return correlateRegion(frame, tpl, region)
}

// downsample halves an image with 2x2 box averaging.
func downsample(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx()/2, src.Bounds().Dy()/2
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		top := src.Pix[2*y*src.Stride : 2*y*src.Stride+2*w]
		bot := src.Pix[(2*y+1)*src.Stride : (2*y+1)*src.Stride+2*w]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			row[x] = byte((int(top[2*x]) + int(top[2*x+1]) + int(bot[2*x]) + int(bot[2*x+1])) / 4)
		}
	}
	return dst
}

// correlateRegion scores every top-left offset inside the given rectangle.
// Window sums come from integral images; the per-offset cross term only runs
// for windows with actual variance, so flat expanses cost almost nothing.
func correlateRegion(frame, tpl *image.Gray, offsets image.Rectangle) (float64, image.Point) {
	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	tw, th := tpl.Bounds().Dx(), tpl.Bounds().Dy()
	n := float64(tw * th)

	// Zero-mean template and its norm.
	var tplSum float64
	for y := 0; y < th; y++ {
		row := tpl.Pix[y*tpl.Stride : y*tpl.Stride+tw]
		for _, p := range row {
			tplSum += float64(p)
		}
	}
	tplMean := tplSum / n
	tplZero := make([]float64, tw*th)
	var tplNormSq float64
	for y := 0; y < th; y++ {
		row := tpl.Pix[y*tpl.Stride : y*tpl.Stride+tw]
		for x, p := range row {
			v := float64(p) - tplMean
			tplZero[y*tw+x] = v
			tplNormSq += v * v
		}
	}
	if tplNormSq == 0 {
		// Flat template carries no signal to correlate against.
		return 0, image.Point{}
	}
	tplNorm := math.Sqrt(tplNormSq)

	// Integral images of the frame for per-window sum and sum of squares.
	iw := fw + 1
	sum := make([]float64, iw*(fh+1))
	sqSum := make([]float64, iw*(fh+1))
	for y := 0; y < fh; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+fw]
		var rs, rss float64
		for x, p := range row {
			v := float64(p)
			rs += v
			rss += v * v
			sum[(y+1)*iw+x+1] = sum[y*iw+x+1] + rs
			sqSum[(y+1)*iw+x+1] = sqSum[y*iw+x+1] + rss
		}
	}

	best := math.Inf(-1)
	var bestLoc image.Point
	for oy := offsets.Min.Y; oy < offsets.Max.Y; oy++ {
		for ox := offsets.Min.X; ox < offsets.Max.X; ox++ {
			winSum := sum[(oy+th)*iw+ox+tw] - sum[oy*iw+ox+tw] - sum[(oy+th)*iw+ox] + sum[oy*iw+ox]
			winSqSum := sqSum[(oy+th)*iw+ox+tw] - sqSum[oy*iw+ox+tw] - sqSum[(oy+th)*iw+ox] + sqSum[oy*iw+ox]
			winVar := winSqSum - winSum*winSum/n
			if winVar <= 0 {
				continue
			}

			var cross float64
			for y := 0; y < th; y++ {
				row := frame.Pix[(oy+y)*frame.Stride+ox : (oy+y)*frame.Stride+ox+tw]
				trow := tplZero[y*tw : y*tw+tw]
				for x, p := range row {
					cross += float64(p) * trow[x]
				}
			}

			// cross already equals sum (f - f̄)(t - t̄) because the template
			// has zero mean.
			score := cross / (math.Sqrt(winVar) * tplNorm)
			if score > best {
				best = score
				bestLoc = image.Point{X: ox, Y: oy}
			}
		}
	}
	if math.IsInf(best, -1) {
		return 0, image.Point{}
	}
	return best, bestLoc
}
