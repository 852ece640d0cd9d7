package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMultiFansOutInOrder(t *testing.T) {
	var got []string
	a := Func(func(n Notification) { got = append(got, "a:"+string(n.Event)) })
	b := Func(func(n Notification) { got = append(got, "b:"+string(n.Event)) })

	Multi{a, nil, b}.Notify(New(EventClientConnected, "s1", ""))

	want := []string{"a:client connected", "b:client connected"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	Log{Logger: logger}.Notify(New(EventSessionFailed, "abc", "encoder exited"))

	out := buf.String()
	for _, want := range []string{"level=warning", `event="session ended unexpectedly"`, "session=abc", `detail="encoder exited"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestNewStampsTime(t *testing.T) {
	n := New(EventServerStarted, "", "")
	if n.Time.IsZero() {
		t.Error("Notification.Time is zero")
	}
	Discard.Notify(n)
}
