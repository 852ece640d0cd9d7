package session

import (
	"os/exec"
	"testing"
	"time"

	"rapidcast/internal/capture"
	"rapidcast/internal/encoder"
	"rapidcast/pkg/models"
)

// TestSyntheticCaptureThroughFFmpeg runs the real pipeline: synthetic frames,
// libx264 through ffmpeg, one viewer over loopback.
func TestSyntheticCaptureThroughFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg pipeline in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	logger := quietLogger()
	c := New(Options{
		Source:     capture.NewSynthetic(logger),
		NewEncoder: encoder.FFmpegFactory(encoder.FFmpegOptions{Logger: logger}),
		Addr:       freePort(t),
		Logger:     logger,
	})
	defer c.Stop()

	cfg := models.CaptureConfig{Width: 320, Height: 240, BitrateBps: 500_000, FrameRateHz: 30, KeyframeIntervalSec: 2}
	if err := c.Start(cfg, "token"); err != nil {
		t.Skipf("ffmpeg pipeline unavailable here: %v", err)
	}

	conn, r := connect(t, c)
	_ = conn.SetReadDeadline(time.Now().Add(time.Duration(cfg.KeyframeIntervalSec)*time.Second + 3*time.Second))

	head := make([]byte, 4)
	if _, err := r.Read(head); err != nil {
		t.Fatalf("no stream bytes after attach: %v", err)
	}
	if head[0] != 0 || head[1] != 0 {
		t.Errorf("stream does not start with an Annex-B start code: % x", head)
	}

	c.Stop()
	if c.IsStreaming() {
		t.Error("IsStreaming() = true after Stop")
	}
}
