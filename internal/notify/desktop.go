package notify

import (
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = notificationsName + ".Notify"

	desktopExpireMs = int32(5000)
)

// Desktop shows notifications through the freedesktop notification
// service on the D-Bus session bus.
type Desktop struct {
	appName string
	conn    *dbus.Conn
	log     logrus.FieldLogger

	// replaceID is the id of the last bubble shown, so the next one
	// replaces it instead of stacking.
	replaceID atomic.Uint32
}

// NewDesktop opens a private connection to the session bus.
func NewDesktop(appName string, logger logrus.FieldLogger) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "connect session bus")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Desktop{
		appName: appName,
		conn:    conn,
		log:     logger.WithField("component", "notify.desktop"),
	}, nil
}

// Notify sends the notification without waiting for a reply. The reply id
// is picked up in the background.
func (d *Desktop) Notify(n Notification) {
	body := n.Detail
	if body == "" && n.SessionID != "" {
		body = "session " + n.SessionID
	}

	obj := d.conn.Object(notificationsName, notificationsPath)
	call := obj.Go(notificationsNotify, 0, nil,
		d.appName,
		d.replaceID.Load(),
		"",
		d.appName+": "+string(n.Event),
		body,
		[]string{},
		map[string]dbus.Variant{},
		desktopExpireMs,
	)
	if call.Err != nil {
		d.log.WithError(call.Err).Debug("desktop notification failed")
		return
	}
	go func() {
		d.recordReply(<-call.Done)
	}()
}

func (d *Desktop) recordReply(call *dbus.Call) {
	if call.Err != nil {
		d.log.WithError(call.Err).Debug("desktop notification failed")
		return
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		d.log.WithError(err).Debug("unexpected notification reply")
		return
	}
	d.replaceID.Store(id)
}

// Close drops the bus connection.
func (d *Desktop) Close() error {
	return d.conn.Close()
}
