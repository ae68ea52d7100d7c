// Package input synthesizes human-looking pointer and keyboard activity.
//
// Pointer trajectories are cubic Bézier arcs: the two control points sit on
// the straight line between start and target (at 30%/70% of the horizontal
// progress and 10%/90% of the vertical progress) and are perturbed by bounded
// uniform jitter so the path bows instead of tracking a ruler line. The curve
// is parametrized with smoothstep easing, which front-loads acceleration and
// back-loads deceleration the way real hand movements do.
package input

import (
	"math"

	"github.com/ferago/launchpilot/internal/utils"
)

// pathPoint is one waypoint of a pointer trajectory, in screen pixels.
type pathPoint struct {
	x, y float64
}

// curveConfig holds the tunable parameters of the Bézier path generator.
type curveConfig struct {
	ctrlOneX float64 // first control point, fraction of horizontal delta
	ctrlOneY float64 // first control point, fraction of vertical delta
	ctrlTwoX float64 // second control point, fraction of horizontal delta
	ctrlTwoY float64 // second control point, fraction of vertical delta

	jitterX float64 // max control-point perturbation, px
	jitterY float64

	stepPixels float64 // one waypoint per this many pixels of distance
	minSteps   int
}

var defaultCurveConfig = curveConfig{
	ctrlOneX: 0.3,
	ctrlOneY: 0.1,
	ctrlTwoX: 0.7,
	ctrlTwoY: 0.9,

	jitterX: 50,
	jitterY: 30,

	stepPixels: 15,
	minSteps:   10,
}

// smoothstep is the 3t²−2t³ easing curve: zero velocity at both ends, peak
// velocity in the middle.
func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

// cubicBezier evaluates one coordinate of a cubic Bézier curve at parameter t.
func cubicBezier(t, p0, p1, p2, p3 float64) float64 {
	u := 1 - t
	return u*u*u*p0 + 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t*p3
}

// bezierPathGenerate builds the waypoint sequence from (x0,y0) to (x1,y1).
// The first waypoint is the start position, the last is exactly the target;
// the waypoint count grows with Euclidean distance so short hops stay snappy
// and long sweeps take proportionally longer.
func bezierPathGenerate(x0, y0, x1, y1 float64, cfg curveConfig) []pathPoint {
	dx := x1 - x0
	dy := y1 - y0

	cp1x := x0 + dx*cfg.ctrlOneX + utils.RandFloat(-cfg.jitterX, cfg.jitterX)
	cp1y := y0 + dy*cfg.ctrlOneY + utils.RandFloat(-cfg.jitterY, cfg.jitterY)
	cp2x := x0 + dx*cfg.ctrlTwoX + utils.RandFloat(-cfg.jitterX, cfg.jitterX)
	cp2y := y0 + dy*cfg.ctrlTwoY + utils.RandFloat(-cfg.jitterY, cfg.jitterY)

	distance := math.Hypot(dx, dy)
	steps := int(distance / cfg.stepPixels)
	if steps < cfg.minSteps {
		steps = cfg.minSteps
	}

	path := make([]pathPoint, 0, steps+2)
	for i := 0; i <= steps; i++ {
		t := smoothstep(float64(i) / float64(steps))
		path = append(path, pathPoint{
			x: cubicBezier(t, x0, cp1x, cp2x, x1),
			y: cubicBezier(t, y0, cp1y, cp2y, y1),
		})
	}
	// Land exactly on the target; intermediate samples are not pixel-exact.
	path = append(path, pathPoint{x: x1, y: y1})
	return path
}
