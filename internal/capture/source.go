// Package capture feeds raw screen frames onto an encoder input surface.
package capture

import (
	"io"

	"github.com/pkg/errors"

	"rapidcast/pkg/models"
)

//go:generate mockgen -destination=../mocks/mock_capture.go -package=mocks rapidcast/internal/capture Source,Binding

// PixelFormatBGRA is the only pixel layout written to a surface.
const PixelFormatBGRA = "BGRA"

// ErrInvalidConfig is returned by Bind for a config no frame can be drawn from.
var ErrInvalidConfig = errors.New("invalid capture config")

// Source binds a display capture onto a writable surface.
type Source interface {
	// Bind starts drawing frames sized by cfg onto surface until the
	// returned Binding is released.
	Bind(surface io.Writer, cfg models.CaptureConfig) (Binding, error)
}

// Binding is a live capture. Release stops it; calling Release twice is safe.
type Binding interface {
	Release() error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(surface io.Writer, cfg models.CaptureConfig) (Binding, error)

// Bind calls f.
func (f SourceFunc) Bind(surface io.Writer, cfg models.CaptureConfig) (Binding, error) {
	return f(surface, cfg)
}

func checkBind(surface io.Writer, cfg models.CaptureConfig) error {
	if surface == nil {
		return errors.Wrap(ErrInvalidConfig, "nil surface")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FrameRateHz <= 0 || cfg.FrameRateHz > models.MaxFrameRateHz {
		return errors.Wrapf(ErrInvalidConfig, "%dx%d at %d fps", cfg.Width, cfg.Height, cfg.FrameRateHz)
	}
	return nil
}
