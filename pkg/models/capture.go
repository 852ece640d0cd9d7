package models

import "fmt"

// MaxEdge caps the longer edge of the captured picture.
const MaxEdge = 1920

// MaxFrameRateHz is the highest frame rate a capture can request.
const MaxFrameRateHz = 240

// Defaults applied by Normalize to unset fields.
const (
	DefaultBitrateBps          = 4_000_000
	DefaultFrameRateHz         = 30
	DefaultKeyframeIntervalSec = 2
)

// CaptureConfig describes how the screen is captured and encoded.
// A session keeps its own normalized copy; it never changes while the session runs.
type CaptureConfig struct {
	Width               int `json:"width" yaml:"width"`
	Height              int `json:"height" yaml:"height"`
	DensityHint         int `json:"densityHint" yaml:"density_hint"`
	BitrateBps          int `json:"bitrateBps" yaml:"bitrate_bps"`
	FrameRateHz         int `json:"frameRateHz" yaml:"frame_rate_hz"`
	KeyframeIntervalSec int `json:"keyframeIntervalSec" yaml:"keyframe_interval_sec"`
}

// Normalize returns a copy with defaults filled in and the longer edge
// clamped to MaxEdge. The other edge is scaled by the same ratio, rounded down.
func (c CaptureConfig) Normalize() CaptureConfig {
	out := c

	if out.BitrateBps == 0 {
		out.BitrateBps = DefaultBitrateBps
	}
	if out.FrameRateHz == 0 {
		out.FrameRateHz = DefaultFrameRateHz
	}
	if out.KeyframeIntervalSec == 0 {
		out.KeyframeIntervalSec = DefaultKeyframeIntervalSec
	}

	if out.Width <= 0 || out.Height <= 0 {
		return out
	}

	if out.Width >= out.Height {
		if out.Width > MaxEdge {
			out.Height = out.Height * MaxEdge / out.Width
			out.Width = MaxEdge
		}
	} else if out.Height > MaxEdge {
		out.Width = out.Width * MaxEdge / out.Height
		out.Height = MaxEdge
	}

	return out
}

// Validate reports whether the config can drive an encoder.
func (c CaptureConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	}
	if c.Width > MaxEdge {
		return fmt.Errorf("capture width %d exceeds %d", c.Width, MaxEdge)
	}
	if c.BitrateBps < 0 || c.FrameRateHz < 0 || c.KeyframeIntervalSec < 0 || c.DensityHint < 0 {
		return fmt.Errorf("negative capture parameter in %+v", c)
	}
	if c.FrameRateHz > MaxFrameRateHz {
		return fmt.Errorf("frame rate %d exceeds %d", c.FrameRateHz, MaxFrameRateHz)
	}
	return nil
}

// GOPFrames is the keyframe interval expressed in frames.
func (c CaptureConfig) GOPFrames() int {
	return c.FrameRateHz * c.KeyframeIntervalSec
}

// FrameSize is the size in bytes of one raw BGRA frame.
func (c CaptureConfig) FrameSize() int {
	return c.Width * c.Height * 4
}

// Resolution formats the picture size, e.g. "1280x720".
func (c CaptureConfig) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}
