package hls

import (
	"fmt"
	"math"

	"github.com/heyjunin/vodforge/pkg/errors"
)

// BuildPlan selects the output variants for a source with the probed
// dimensions: every ladder tier whose height does not exceed the probed
// height, ascending. Sources below the smallest tier get exactly one variant
// at their native height with the smallest tier's bitrate settings, so no
// input is ever upscaled and no plan is ever empty. Deterministic and free of
// side effects; the same dimensions always produce the same plan.
func BuildPlan(width, height int) ([]Variant, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.InvalidInputError,
			"Probed dimensions must be positive",
			fmt.Sprintf("width=%d height=%d", width, height),
			errors.ErrInvalidDimensions)
	}

	var plan []Variant
	for _, tier := range Ladder {
		if tier.Height <= height {
			plan = append(plan, tier)
		}
	}
	if len(plan) > 0 {
		return plan, nil
	}

	return []Variant{nativeVariant(width, height)}, nil
}

// nativeVariant builds the single below-ladder rendition: native height,
// width derived from the source aspect ratio, bitrates borrowed from the
// smallest tier. Dimensions are rounded down to even values as required by
// H.264.
func nativeVariant(width, height int) Variant {
	v := Ladder[0]

	h := height - height%2
	if h < 2 {
		h = 2
	}
	w := int(math.Round(float64(width) * float64(h) / float64(height)))
	w -= w % 2
	if w < 2 {
		w = 2
	}

	v.Label = fmt.Sprintf("%dp", h)
	v.Width = w
	v.Height = h
	return v
}
