package bluez

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

// ReqError is the answer an application gives to a request BlueZ made to
// one of its exported objects.
type ReqError uint8

const (
	// ReqCanceled means the request was abandoned. It is the zero value.
	ReqCanceled ReqError = iota
	// ReqRejected means the request was declined or no handler was installed.
	ReqRejected
)

// String returns the stable name used in bus error replies.
func (e ReqError) String() string {
	switch e {
	case ReqRejected:
		return "Rejected"
	default:
		return "Canceled"
	}
}

func (e ReqError) Error() string {
	switch e {
	case ReqRejected:
		return "Request was rejected."
	default:
		return "Request was canceled."
	}
}

// DBusError converts e into the error reply sent back over the bus.
func (e ReqError) DBusError() *dbus.Error {
	return dbus.NewError(errPrefix+e.String(), []interface{}{e.Error()})
}

// toDBusError maps a handler error onto a bus reply. Errors that do not wrap
// a ReqError are reported as rejections.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	var re ReqError
	if errors.As(err, &re) {
		return re.DBusError()
	}
	return ReqRejected.DBusError()
}
