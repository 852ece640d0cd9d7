package session

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"rapidcast/internal/encoder"
	"rapidcast/internal/mocks"
	"rapidcast/pkg/models"
)

func mockController(enc encoder.Encoder, encErr error, src *mocks.MockSource, addr string) *Controller {
	return New(Options{
		Source: src,
		NewEncoder: func(models.CaptureConfig) (encoder.Encoder, error) {
			if encErr != nil {
				return nil, encErr
			}
			return enc, nil
		},
		Addr:   addr,
		Logger: quietLogger(),
	})
}

func TestListenFailureRollsBackInOrder(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer busy.Close()

	ctrl := gomock.NewController(t)
	enc := mocks.NewMockEncoder(ctrl)
	src := mocks.NewMockSource(ctrl)
	binding := mocks.NewMockBinding(ctrl)

	enc.EXPECT().Surface().Return(io.Discard)
	src.EXPECT().Bind(io.Discard, gomock.Any()).Return(binding, nil)
	gomock.InOrder(
		enc.EXPECT().Close().Return(errors.New("already gone")),
		binding.EXPECT().Release().Return(nil),
	)

	c := mockController(enc, nil, src, busy.Addr().String())
	err = c.Start(testConfig, "token")
	if !errors.Is(err, ErrListenFailed) {
		t.Fatalf("Start() = %v, want ErrListenFailed", err)
	}
	if c.State() != models.SessionStateIdle || c.IsStreaming() {
		t.Errorf("State() = %s after failed start, want idle", c.State())
	}
}

func TestCaptureFailureClosesEncoder(t *testing.T) {
	ctrl := gomock.NewController(t)
	enc := mocks.NewMockEncoder(ctrl)
	src := mocks.NewMockSource(ctrl)
	denied := errors.New("projection token expired")

	enc.EXPECT().Surface().Return(io.Discard)
	src.EXPECT().Bind(gomock.Any(), gomock.Any()).Return(nil, denied)
	enc.EXPECT().Close().Return(nil)

	c := mockController(enc, nil, src, "127.0.0.1:0")
	err := c.Start(testConfig, "token")
	if !errors.Is(err, ErrCaptureUnavailable) || !errors.Is(err, denied) {
		t.Fatalf("Start() = %v, want CaptureUnavailable wrapping the bind error", err)
	}
}

func TestEncoderFailureAcquiresNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)

	c := mockController(nil, errors.New("no codec"), src, "127.0.0.1:0")
	err := c.Start(testConfig, "token")
	if !errors.Is(err, ErrEncoderInitFailed) {
		t.Fatalf("Start() = %v, want ErrEncoderInitFailed", err)
	}
}

func TestInvalidConfigIsEncoderInitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)

	c := mockController(nil, nil, src, "127.0.0.1:0")
	err := c.Start(models.CaptureConfig{Width: 0, Height: 720}, "token")
	if !errors.Is(err, ErrEncoderInitFailed) {
		t.Fatalf("Start() = %v, want ErrEncoderInitFailed", err)
	}
}

func TestExcessiveFrameRateIsEncoderInitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)

	c := mockController(nil, nil, src, "127.0.0.1:0")
	err := c.Start(models.CaptureConfig{Width: 16, Height: 16, FrameRateHz: 2_000_000_000}, "token")
	if !errors.Is(err, ErrEncoderInitFailed) {
		t.Fatalf("Start() = %v, want ErrEncoderInitFailed", err)
	}
	if c.State() != models.SessionStateIdle {
		t.Errorf("State() = %s, want idle", c.State())
	}
}

func TestStopSwallowsReleaseErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	enc := mocks.NewMockEncoder(ctrl)
	src := mocks.NewMockSource(ctrl)
	binding := mocks.NewMockBinding(ctrl)

	enc.EXPECT().Surface().Return(io.Discard)
	enc.EXPECT().Poll(gomock.Any()).DoAndReturn(func(timeout time.Duration) (*models.EncodedUnit, error) {
		time.Sleep(timeout)
		return nil, nil
	}).AnyTimes()
	src.EXPECT().Bind(gomock.Any(), gomock.Any()).Return(binding, nil)
	gomock.InOrder(
		enc.EXPECT().Close().Return(errors.New("kill failed")),
		binding.EXPECT().Release().Return(errors.New("release failed")),
	)

	c := mockController(enc, nil, src, "127.0.0.1:0")
	if err := c.Start(testConfig, "token"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	if c.State() != models.SessionStateIdle {
		t.Errorf("State() = %s, want idle", c.State())
	}
}
