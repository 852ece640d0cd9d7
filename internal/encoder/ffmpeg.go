package encoder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rapidcast/pkg/models"
)

const (
	defaultOutputQueue = 8
	readChunkSize      = 64 * 1024
	closeTimeout       = 2 * time.Second
)

// FFmpegOptions configures the ffmpeg-backed encoder.
type FFmpegOptions struct {
	Path      string    // ffmpeg binary, looked up in PATH when relative
	QueueSize int       // encoded units kept while nobody polls
	LogOutput io.Writer // receives ffmpeg stderr when set
	Logger    logrus.FieldLogger
}

// FFmpeg drives libx264 through an ffmpeg child process. Raw BGRA frames
// go in on stdin, an Annex-B elementary stream comes back on stdout.
type FFmpeg struct {
	cfg    models.CaptureConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *lockedBuffer
	log    logrus.FieldLogger

	out  chan *models.EncodedUnit
	done chan struct{} // closed once the output reader has finished
	err  error         // terminal reader error, valid after done

	frameIndex int64
	dropped    atomic.Uint64
	closing    atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// FFmpegFactory returns a Factory building FFmpeg encoders with opts.
func FFmpegFactory(opts FFmpegOptions) Factory {
	return func(cfg models.CaptureConfig) (Encoder, error) {
		return NewFFmpeg(cfg, opts)
	}
}

// NewFFmpeg validates cfg and starts the encoder process.
func NewFFmpeg(cfg models.CaptureConfig, opts FFmpegOptions) (*FFmpeg, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FrameRateHz <= 0 || cfg.BitrateBps <= 0 || cfg.KeyframeIntervalSec <= 0 {
		return nil, fmt.Errorf("encoder needs positive bitrate, frame rate and keyframe interval: %+v", cfg)
	}

	path := opts.Path
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ffmpeg lookup %q", path)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := newFFmpeg(cfg, opts.QueueSize, logger)

	args := Args(cfg)
	e.log.WithField("args", strings.Join(args, " ")).Debug("starting ffmpeg")

	cmd := exec.Command(resolved, args...)
	stderrWriter := io.Writer(e.stderr)
	if opts.LogOutput != nil {
		stderrWriter = io.MultiWriter(opts.LogOutput, e.stderr)
	}
	cmd.Stderr = stderrWriter

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, errors.Wrap(err, "ffmpeg stdout")
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, errors.Wrap(err, "ffmpeg start")
	}

	e.cmd = cmd
	e.stdin = stdin
	go e.readLoop(stdout, cmd.Wait)

	return e, nil
}

func newFFmpeg(cfg models.CaptureConfig, queueSize int, logger logrus.FieldLogger) *FFmpeg {
	if queueSize <= 0 {
		queueSize = defaultOutputQueue
	}
	return &FFmpeg{
		cfg:    cfg,
		stderr: &lockedBuffer{},
		log:    logger.WithField("component", "encoder"),
		out:    make(chan *models.EncodedUnit, queueSize),
		done:   make(chan struct{}),
	}
}

// Args builds the ffmpeg command line for cfg: CBR baseline H.264 at a
// fixed frame rate with a keyframe every KeyframeIntervalSec seconds and an
// access unit delimiter in front of every picture.
func Args(cfg models.CaptureConfig) []string {
	fps := strconv.Itoa(cfg.FrameRateHz)
	gop := strconv.Itoa(cfg.GOPFrames())
	bitrate := strconv.Itoa(cfg.BitrateBps)

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-s", cfg.Resolution(),
		"-r", fps,
		"-i", "pipe:0",
		"-an",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-b:v", bitrate,
		"-minrate", bitrate,
		"-maxrate", bitrate,
		"-bufsize", bitrate,
		"-x264-params", "nal-hrd=cbr",
		"-r", fps,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
		"-bsf:v", "h264_metadata=aud=insert",
		"-f", "h264",
		"pipe:1",
	}
}

// Surface is ffmpeg's stdin.
func (e *FFmpeg) Surface() io.Writer {
	return e.stdin
}

// Poll waits up to timeout for the next access unit.
func (e *FFmpeg) Poll(timeout time.Duration) (*models.EncodedUnit, error) {
	select {
	case u := <-e.out:
		return u, nil
	default:
	}
	if e.closing.Load() {
		return nil, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-e.out:
		return u, nil
	case <-e.done:
		select {
		case u := <-e.out:
			return u, nil
		default:
		}
		return nil, e.err
	case <-timer.C:
		return nil, nil
	}
}

// Dropped returns how many units were discarded because nobody polled.
func (e *FFmpeg) Dropped() uint64 {
	return e.dropped.Load()
}

// StderrTail returns the last n bytes ffmpeg wrote to stderr.
func (e *FFmpeg) StderrTail(n int) string {
	return e.stderr.Tail(n)
}

// Close kills the encoder process and waits for its output to drain.
func (e *FFmpeg) Close() error {
	e.closeOnce.Do(func() {
		e.closing.Store(true)

		if e.cmd != nil && e.cmd.Process != nil {
			if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				e.closeErr = errors.Wrap(err, "ffmpeg kill")
			}
		}
		if e.stdin != nil {
			_ = e.stdin.Close()
		}

		select {
		case <-e.done:
		case <-time.After(closeTimeout):
			if e.closeErr == nil {
				e.closeErr = errors.New("ffmpeg did not exit")
			}
		}
	})
	return e.closeErr
}

func (e *FFmpeg) readLoop(r io.Reader, wait func() error) {
	defer close(e.done)

	var sp Splitter
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			for _, au := range sp.Write(buf[:n]) {
				e.emit(au)
			}
		}
		if readErr == nil {
			continue
		}

		if last := sp.Flush(); last != nil && !e.closing.Load() {
			e.emit(last)
		}
		waitErr := wait()

		if e.closing.Load() {
			e.err = ErrClosed
			return
		}
		cause := readErr
		if readErr == io.EOF && waitErr != nil {
			cause = waitErr
		}
		e.err = errors.Wrapf(ErrEncoderFailed, "ffmpeg output ended (%v): %s", cause, e.stderr.Tail(300))
		e.log.WithError(e.err).Error("encoder stopped producing output")
		return
	}
}

func (e *FFmpeg) emit(au []byte) {
	fps := int64(e.cfg.FrameRateHz)
	if fps <= 0 {
		fps = models.DefaultFrameRateHz
	}
	u := &models.EncodedUnit{
		Payload:            au,
		PresentationTimeUs: e.frameIndex * 1_000_000 / fps,
		IsKeyFrame:         IsKeyFrame(au),
	}
	e.frameIndex++

	if u.IsKeyFrame {
		if w, h, ok := PictureSize(au); ok {
			e.log.WithField("size", fmt.Sprintf("%dx%d", w, h)).Debug("keyframe")
		}
	}

	select {
	case e.out <- u:
		return
	default:
	}

	// Queue full: drop oldest so the newest picture is the next one out.
	select {
	case <-e.out:
		e.dropped.Add(1)
	default:
	}
	select {
	case e.out <- u:
	default:
		e.dropped.Add(1)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return "no ffmpeg stderr output"
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
