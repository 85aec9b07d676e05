package ops

import (
	"math"

	"github.com/tanema/gween/ease"

	"github.com/dsedov/penpal-studio/pkg/graph"
)

// DecayFunc maps a normalized distance t in [0,1] to a transform weight,
// 1 at the pivot and falling towards 0 at the radius.
type DecayFunc func(t float64) float64

// easeOut turns a tween curve into a decay: the weight is whatever the
// tween has not yet covered at t.
func easeOut(f ease.TweenFunc) DecayFunc {
	return func(t float64) float64 {
		return 1 - float64(f(float32(t), 0, 1, 1))
	}
}

var decayCurves = []struct {
	name  string
	label string
	fn    DecayFunc
}{
	{"linear", "Linear", func(t float64) float64 { return 1 - t }},
	{"smooth", "Smooth", func(t float64) float64 { return math.Cos(t * math.Pi / 2) }},
	{"exponential", "Exponential", func(t float64) float64 { return math.Exp(-4 * t) }},
	{"easeInQuad", "Ease in (quad)", easeOut(ease.InQuad)},
	{"easeOutQuad", "Ease out (quad)", easeOut(ease.OutQuad)},
	{"easeInOutQuad", "Ease in-out (quad)", easeOut(ease.InOutQuad)},
	{"easeInOutCubic", "Ease in-out (cubic)", easeOut(ease.InOutCubic)},
	{"easeInOutSine", "Ease in-out (sine)", easeOut(ease.InOutSine)},
	{"easeOutBounce", "Bounce", easeOut(ease.OutBounce)},
}

// Decay returns the named decay curve.
func Decay(name string) (DecayFunc, bool) {
	for _, c := range decayCurves {
		if c.name == name {
			return c.fn, true
		}
	}
	return nil, false
}

func decayOptions() []graph.Option {
	out := make([]graph.Option, len(decayCurves))
	for i, c := range decayCurves {
		out[i] = graph.Option{Value: c.name, Label: c.label}
	}
	return out
}

// Strength is the weight of a soft transform at distance from the pivot.
// Points on or beyond radius get 0 and the pivot itself gets 1; inverse
// swaps the two regions.
func Strength(distance, radius float64, decay DecayFunc, inverse bool) float64 {
	if distance >= radius {
		if inverse {
			return 1
		}
		return 0
	}
	if distance <= 0 {
		if inverse {
			return 0
		}
		return 1
	}
	w := decay(distance / radius)
	if inverse {
		return 1 - w
	}
	return w
}
