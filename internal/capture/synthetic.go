package capture

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rapidcast/pkg/models"
)

// Synthetic draws a moving test pattern. It stands in for a real display on
// hosts without one and in tests.
type Synthetic struct {
	Logger logrus.FieldLogger
}

// NewSynthetic returns a Synthetic source logging through logger.
func NewSynthetic(logger logrus.FieldLogger) *Synthetic {
	return &Synthetic{Logger: logger}
}

// Bind starts a goroutine writing one BGRA frame per 1/FrameRateHz seconds.
func (s *Synthetic) Bind(surface io.Writer, cfg models.CaptureConfig) (Binding, error) {
	if err := checkBind(surface, cfg); err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	b := &syntheticBinding{
		surface: surface,
		cfg:     cfg,
		log:     logger.WithFields(logrus.Fields{"component": "capture", "source": "synthetic"}),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()

	b.log.WithField("size", cfg.Resolution()).Info("synthetic capture bound")
	return b, nil
}

type syntheticBinding struct {
	surface io.Writer
	cfg     models.CaptureConfig
	log     logrus.FieldLogger

	frames    atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (b *syntheticBinding) run() {
	defer b.wg.Done()

	frame := make([]byte, b.cfg.FrameSize())
	ticker := time.NewTicker(time.Second / time.Duration(b.cfg.FrameRateHz))
	defer ticker.Stop()

	for n := 0; ; n++ {
		drawPattern(frame, b.cfg.Width, b.cfg.Height, n)
		if _, err := b.surface.Write(frame); err != nil {
			select {
			case <-b.done:
			default:
				b.log.WithError(err).Info("surface closed, capture stopped")
			}
			return
		}
		b.frames.Add(1)

		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
	}
}

// Frames returns how many frames reached the surface.
func (b *syntheticBinding) Frames() uint64 {
	return b.frames.Load()
}

func (b *syntheticBinding) Release() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	// A write blocked on the surface returns once the encoder side is closed.
	b.wg.Wait()
	return nil
}

// drawPattern fills frame with diagonal colour bars shifted by n pixels and a
// white column sweeping left to right.
func drawPattern(frame []byte, width, height, n int) {
	sweep := n % width
	for y := 0; y < height; y++ {
		row := frame[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			if x == sweep {
				px[0], px[1], px[2], px[3] = 0xff, 0xff, 0xff, 0xff
				continue
			}
			band := byte((x + y + n) / 8 * 32)
			px[0] = band       // B
			px[1] = band + 85  // G
			px[2] = band + 170 // R
			px[3] = 0xff
		}
	}
}
