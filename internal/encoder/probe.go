package encoder

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// RequiredCodec is the ffmpeg encoder the FFmpeg adapter drives.
	RequiredCodec = "libx264"

	probeTimeout = 5 * time.Second
)

// CheckFFmpeg verifies that the ffmpeg at path runs and was built with
// RequiredCodec.
func CheckFFmpeg(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-hide_banner", "-encoders")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return errors.Errorf("ffmpeg -encoders timed out after %s", probeTimeout)
	}
	if err != nil {
		return errors.Wrapf(err, "ffmpeg not found or not working: %s", strings.TrimSpace(stderr.String()))
	}

	if _, ok := videoEncoders(out)[RequiredCodec]; !ok {
		return errors.Errorf("ffmpeg at %s was built without %s", path, RequiredCodec)
	}
	return nil
}

// videoEncoders parses `ffmpeg -encoders` output into the set of video
// encoder names. Lines look like " V....D libx264   libx264 H.264 ...".
func videoEncoders(out []byte) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 || len(fields[0]) != 6 || fields[1] == "=" {
			continue
		}
		if fields[0][0] == 'V' {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders
}
