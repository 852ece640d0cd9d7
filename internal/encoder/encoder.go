// Package encoder turns raw frames into a lazy, ordered sequence of H.264
// access units.
package encoder

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"rapidcast/pkg/models"
)

//go:generate mockgen -destination=../mocks/mock_encoder.go -package=mocks rapidcast/internal/encoder Encoder

// DefaultPollTimeout bounds one wait for encoder output.
const DefaultPollTimeout = 10 * time.Millisecond

var (
	// ErrEncoderFailed reports a codec-level failure; the session cannot continue.
	ErrEncoderFailed = errors.New("encoder failed")
	// ErrClosed is returned by Poll after Close.
	ErrClosed = errors.New("encoder closed")
)

// Encoder accepts raw frames on its input surface and yields encoded units.
type Encoder interface {
	// Surface is where the capture source draws raw BGRA frames.
	Surface() io.Writer
	// Poll waits up to timeout for the next unit. (nil, nil) means try again.
	Poll(timeout time.Duration) (*models.EncodedUnit, error)
	// Close stops the codec and releases its resources.
	Close() error
}

// Factory builds an encoder for a normalized capture config.
type Factory func(cfg models.CaptureConfig) (Encoder, error)
