package models

import "testing"

func TestNormalizeClampsLongerEdge(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"within cap", 1280, 720, 1280, 720},
		{"exactly cap", 1920, 1080, 1920, 1080},
		{"wide", 2560, 1440, 1920, 1080},
		{"rounds down", 2400, 1081, 1920, 864},
		{"ultrawide", 3840, 1601, 1920, 800},
		{"portrait", 1080, 2400, 864, 1920},
		{"portrait within cap", 720, 1280, 720, 1280},
		{"square", 2000, 2000, 1920, 1920},
	}

	for _, tt := range tests {
		got := CaptureConfig{Width: tt.width, Height: tt.height}.Normalize()
		if got.Width != tt.wantW || got.Height != tt.wantH {
			t.Errorf("%s: Normalize(%dx%d) = %dx%d, want %dx%d",
				tt.name, tt.width, tt.height, got.Width, got.Height, tt.wantW, tt.wantH)
		}
		if got.Width > MaxEdge {
			t.Errorf("%s: width %d exceeds %d", tt.name, got.Width, MaxEdge)
		}
	}
}

func TestNormalizeWidthOverCapScalesHeightByRatio(t *testing.T) {
	for w := MaxEdge + 1; w <= 4096; w += 97 {
		for _, h := range []int{1, 333, 1080, 1439} {
			got := CaptureConfig{Width: w, Height: h}.Normalize()
			if got.Width != MaxEdge {
				t.Fatalf("Normalize(%dx%d).Width = %d, want %d", w, h, got.Width, MaxEdge)
			}
			if want := h * MaxEdge / w; got.Height != want {
				t.Fatalf("Normalize(%dx%d).Height = %d, want %d", w, h, got.Height, want)
			}
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	got := CaptureConfig{Width: 640, Height: 480}.Normalize()
	if got.BitrateBps != DefaultBitrateBps {
		t.Errorf("BitrateBps = %d, want %d", got.BitrateBps, DefaultBitrateBps)
	}
	if got.FrameRateHz != DefaultFrameRateHz {
		t.Errorf("FrameRateHz = %d, want %d", got.FrameRateHz, DefaultFrameRateHz)
	}
	if got.KeyframeIntervalSec != DefaultKeyframeIntervalSec {
		t.Errorf("KeyframeIntervalSec = %d, want %d", got.KeyframeIntervalSec, DefaultKeyframeIntervalSec)
	}
	if got.GOPFrames() != 60 {
		t.Errorf("GOPFrames() = %d, want 60", got.GOPFrames())
	}
	if got.FrameSize() != 640*480*4 {
		t.Errorf("FrameSize() = %d, want %d", got.FrameSize(), 640*480*4)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	in := CaptureConfig{Width: 1280, Height: 720, DensityHint: 320, BitrateBps: 2_000_000, FrameRateHz: 24, KeyframeIntervalSec: 1}
	if got := in.Normalize(); got != in {
		t.Errorf("Normalize() = %+v, want %+v", got, in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		cfg     CaptureConfig
		wantErr bool
	}{
		{CaptureConfig{Width: 1280, Height: 720}, false},
		{CaptureConfig{Width: 0, Height: 720}, true},
		{CaptureConfig{Width: 1280, Height: -1}, true},
		{CaptureConfig{Width: 2560, Height: 1440}, true},
		{CaptureConfig{Width: 1280, Height: 720, FrameRateHz: -5}, true},
		{CaptureConfig{Width: 1280, Height: 720, FrameRateHz: MaxFrameRateHz}, false},
		{CaptureConfig{Width: 1280, Height: 720, FrameRateHz: MaxFrameRateHz + 1}, true},
		{CaptureConfig{Width: 16, Height: 16, FrameRateHz: 2_000_000_000}, true},
	}

	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}
