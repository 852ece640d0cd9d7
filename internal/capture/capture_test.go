package capture

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rapidcast/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// frameRecorder remembers the size of every write.
type frameRecorder struct {
	mu     sync.Mutex
	sizes  []int
	failAt int
}

func (r *frameRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.sizes) >= r.failAt {
		return 0, io.ErrClosedPipe
	}
	r.sizes = append(r.sizes, len(p))
	return len(p), nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sizes)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSyntheticWritesWholeFrames(t *testing.T) {
	cfg := models.CaptureConfig{Width: 16, Height: 8, FrameRateHz: 100}
	rec := &frameRecorder{}

	b, err := NewSynthetic(quietLogger()).Bind(rec, cfg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	waitFor(t, func() bool { return rec.count() >= 3 })

	if err := b.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := b.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	n := rec.count()
	time.Sleep(30 * time.Millisecond)
	if rec.count() != n {
		t.Error("frames written after Release")
	}
	for i, size := range rec.sizes {
		if size != cfg.FrameSize() {
			t.Fatalf("frame %d is %d bytes, want %d", i, size, cfg.FrameSize())
		}
	}
}

func TestSyntheticStopsOnWriteError(t *testing.T) {
	cfg := models.CaptureConfig{Width: 4, Height: 4, FrameRateHz: 200}
	rec := &frameRecorder{failAt: 2}

	b, err := NewSynthetic(quietLogger()).Bind(rec, cfg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b.Release()

	sb := b.(*syntheticBinding)
	waitFor(t, func() bool { return sb.Frames() == 2 })
	time.Sleep(30 * time.Millisecond)
	if got := sb.Frames(); got != 2 {
		t.Errorf("Frames() = %d after write error, want 2", got)
	}
}

func TestBindRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		surface io.Writer
		cfg     models.CaptureConfig
	}{
		{"nil surface", nil, models.CaptureConfig{Width: 4, Height: 4, FrameRateHz: 30}},
		{"zero size", &bytes.Buffer{}, models.CaptureConfig{FrameRateHz: 30}},
		{"zero rate", &bytes.Buffer{}, models.CaptureConfig{Width: 4, Height: 4}},
		{"rate too high", &bytes.Buffer{}, models.CaptureConfig{Width: 16, Height: 16, FrameRateHz: 2_000_000_000}},
	}

	sources := map[string]Source{
		"synthetic": NewSynthetic(quietLogger()),
		"command":   &Command{Path: "true", Logger: quietLogger()},
	}
	for srcName, src := range sources {
		for _, tt := range tests {
			_, err := src.Bind(tt.surface, tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("%s/%s: Bind() error = %v, want ErrInvalidConfig", srcName, tt.name, err)
			}
		}
	}
}

func TestDrawPatternMovesSweep(t *testing.T) {
	const w, h = 8, 2
	frame := make([]byte, w*h*4)

	drawPattern(frame, w, h, 3)
	if !bytes.Equal(frame[3*4:3*4+4], []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("pixel 3 = % x, want white sweep", frame[3*4:3*4+4])
	}
	for x := 0; x < w; x++ {
		if frame[x*4+3] != 0xff {
			t.Fatalf("pixel %d alpha = %#x, want opaque", x, frame[x*4+3])
		}
	}
}

func TestExpandArgs(t *testing.T) {
	cfg := models.CaptureConfig{Width: 1280, Height: 720, FrameRateHz: 30}
	got := ExpandArgs([]string{"-video_size", "{width}x{height}", "-framerate", "{fps}", "-i", ":0"}, cfg)
	want := []string{"-video_size", "1280x720", "-framerate", "30", "-i", ":0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandArgs() = %v, want %v", got, want)
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("  grab -a {fps}  ", nil)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if c.Path != "grab" || !reflect.DeepEqual(c.Args, []string{"-a", "{fps}"}) {
		t.Errorf("ParseCommand() = %q %v", c.Path, c.Args)
	}
	if _, err := ParseCommand("   ", nil); err == nil {
		t.Error("ParseCommand on blank line succeeded")
	}
}

func TestCommandCopiesStdoutToSurface(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cfg := models.CaptureConfig{Width: 4, Height: 2, FrameRateHz: 30}
	var mu sync.Mutex
	var out bytes.Buffer
	surface := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return out.Write(p)
	})

	src := &Command{Path: "sh", Args: []string{"-c", "printf {width}x{height}@{fps}"}, Logger: quietLogger()}
	b, err := src.Bind(surface, cfg)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	<-b.(*commandBinding).done

	mu.Lock()
	got := out.String()
	mu.Unlock()
	if got != "4x2@30" {
		t.Errorf("surface got %q, want %q", got, "4x2@30")
	}
	if err := b.Release(); err != nil {
		t.Errorf("Release after exit: %v", err)
	}
}

func TestCommandReleaseKillsGrabber(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	src := &Command{Path: "sleep", Args: []string{"30"}, Logger: quietLogger()}
	b, err := src.Bind(io.Discard, models.CaptureConfig{Width: 4, Height: 2, FrameRateHz: 30})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	start := time.Now()
	if err := b.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d := time.Since(start); d > commandStopTimeout {
		t.Errorf("Release took %v", d)
	}
}

func TestCommandMissingBinary(t *testing.T) {
	src := &Command{Path: "/nonexistent/grabber-for-tests", Logger: quietLogger()}
	if _, err := src.Bind(io.Discard, models.CaptureConfig{Width: 4, Height: 2, FrameRateHz: 30}); err == nil {
		t.Fatal("Bind with missing binary succeeded")
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
