package segment

import (
	"context"
	"image"
)

// Segmenter produces a foreground matte for an image. The returned mask is
// at the backend's own resolution; callers rescale it to the image size.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*image.Gray, error)
	Close() error
}

// Stats describes a running backend for /metrics and periodic logs.
type Stats struct {
	Backend string   `json:"backend"`
	Device  string   `json:"device"`
	Pool    *Metrics `json:"pool,omitempty"`
}

type Inspector interface {
	Stats() Stats
}

// Maintainer is implemented by backends that can repair themselves, e.g.
// by recreating sessions dropped after failed runs.
type Maintainer interface {
	Maintain() (int, error)
}
