package engine

import (
	"log/slog"
	"math"
	"time"
)

// Options tunes an engine. Zero fields take the defaults of DefaultOptions.
type Options struct {
	// FocusThreshold is the hit-test radius in screen pixels.
	FocusThreshold float64
	MinZoom        float64
	MaxZoom        float64

	Charge          float64
	LinkDistance    float64
	WarmAlphaTarget float64
	// AlphaDecay overrides the simulation cooling rate when > 0.
	AlphaDecay   float64
	TickInterval time.Duration
	Seed         uint64

	ItemRadius    float64
	FontSize      float64
	LetterSpacing float64
	StrokeWidth   float64

	Logger *slog.Logger
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		FocusThreshold:  15,
		MinZoom:         0.1,
		MaxZoom:         8,
		Charge:          -30,
		LinkDistance:    30,
		WarmAlphaTarget: 0.3,
		TickInterval:    16 * time.Millisecond,
		Seed:            1,
		ItemRadius:      4,
		FontSize:        8,
		LetterSpacing:   0.5,
		StrokeWidth:     1,
	}
}

// ClampZoom limits a zoom factor to [MinZoom, MaxZoom]. Non-positive or NaN
// factors become 1.
func (o Options) ClampZoom(k float64) float64 {
	o = o.withDefaults()
	if k <= 0 || math.IsNaN(k) {
		k = 1
	}
	return math.Max(o.MinZoom, math.Min(o.MaxZoom, k))
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FocusThreshold > 0 {
		d.FocusThreshold = o.FocusThreshold
	}
	if o.MinZoom > 0 {
		d.MinZoom = o.MinZoom
	}
	if o.MaxZoom > 0 {
		d.MaxZoom = o.MaxZoom
	}
	if o.Charge != 0 {
		d.Charge = o.Charge
	}
	if o.LinkDistance > 0 {
		d.LinkDistance = o.LinkDistance
	}
	if o.WarmAlphaTarget > 0 {
		d.WarmAlphaTarget = o.WarmAlphaTarget
	}
	if o.AlphaDecay > 0 {
		d.AlphaDecay = o.AlphaDecay
	}
	if o.TickInterval > 0 {
		d.TickInterval = o.TickInterval
	}
	if o.Seed != 0 {
		d.Seed = o.Seed
	}
	if o.ItemRadius > 0 {
		d.ItemRadius = o.ItemRadius
	}
	if o.FontSize > 0 {
		d.FontSize = o.FontSize
	}
	if o.LetterSpacing > 0 {
		d.LetterSpacing = o.LetterSpacing
	}
	if o.StrokeWidth > 0 {
		d.StrokeWidth = o.StrokeWidth
	}
	d.Logger = o.Logger
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	return d
}
