package capture

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rapidcast/pkg/models"
)

const commandStopTimeout = 2 * time.Second

// Command runs an external grabber that writes raw BGRA frames to stdout,
// for example
//
//	ffmpeg -f x11grab -video_size {width}x{height} -framerate {fps} -i :0 -f rawvideo -pix_fmt bgra -
//
// The placeholders {width}, {height} and {fps} are replaced from the bound config.
type Command struct {
	Path   string
	Args   []string
	Logger logrus.FieldLogger
}

// ParseCommand splits a command line on whitespace into a Command.
func ParseCommand(line string, logger logrus.FieldLogger) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty capture command")
	}
	return &Command{Path: fields[0], Args: fields[1:], Logger: logger}, nil
}

// ExpandArgs substitutes the config placeholders in args.
func ExpandArgs(args []string, cfg models.CaptureConfig) []string {
	r := strings.NewReplacer(
		"{width}", strconv.Itoa(cfg.Width),
		"{height}", strconv.Itoa(cfg.Height),
		"{fps}", strconv.Itoa(cfg.FrameRateHz),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// Bind starts the grabber and copies its stdout onto surface.
func (c *Command) Bind(surface io.Writer, cfg models.CaptureConfig) (Binding, error) {
	if err := checkBind(surface, cfg); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture command %q", c.Path)
	}

	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	args := ExpandArgs(c.Args, cfg)
	cmd := exec.Command(path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "capture stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "capture start")
	}

	b := &commandBinding{
		cmd:  cmd,
		log:  logger.WithFields(logrus.Fields{"component": "capture", "source": "command", "pid": cmd.Process.Pid}),
		done: make(chan struct{}),
	}
	go b.copy(surface, stdout, &stderr)

	b.log.WithField("args", strings.Join(args, " ")).Info("capture command started")
	return b, nil
}

type commandBinding struct {
	cmd *exec.Cmd
	log logrus.FieldLogger

	mu       sync.Mutex
	released bool
	done     chan struct{}

	once sync.Once
	err  error
}

func (b *commandBinding) copy(surface io.Writer, stdout io.Reader, stderr *bytes.Buffer) {
	defer close(b.done)

	n, copyErr := io.Copy(surface, stdout)
	waitErr := b.cmd.Wait()

	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if released {
		return
	}

	entry := b.log.WithField("bytes", n)
	if copyErr != nil {
		entry = entry.WithError(copyErr)
	} else if waitErr != nil {
		entry = entry.WithError(waitErr)
	}
	entry.WithField("stderr", strings.TrimSpace(stderr.String())).Warn("capture command ended")
}

func (b *commandBinding) Release() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.released = true
		b.mu.Unlock()

		if err := b.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			b.err = errors.Wrap(err, "capture kill")
		}
		select {
		case <-b.done:
		case <-time.After(commandStopTimeout):
			if b.err == nil {
				b.err = errors.New("capture command did not exit")
			}
		}
	})
	return b.err
}
