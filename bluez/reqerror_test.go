package bluez

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReqErrorDefaultIsCanceled(t *testing.T) {
	var e ReqError
	assert.Equal(t, ReqCanceled, e)
	assert.Equal(t, "Canceled", e.String())
}

func TestReqErrorNames(t *testing.T) {
	assert.Equal(t, "Rejected", ReqRejected.String())
	assert.Equal(t, "Request was rejected.", ReqRejected.Error())
	assert.Equal(t, "Request was canceled.", ReqCanceled.Error())
}

func TestReqErrorComparable(t *testing.T) {
	seen := map[ReqError]int{}
	seen[ReqRejected]++
	seen[ReqCanceled]++
	seen[ReqRejected]++

	assert.Equal(t, 2, seen[ReqRejected])
	assert.Equal(t, 1, seen[ReqCanceled])
	assert.NotEqual(t, ReqRejected, ReqCanceled)
	assert.True(t, ReqCanceled < ReqRejected)
}

func TestReqErrorDBusError(t *testing.T) {
	e := ReqRejected.DBusError()
	require.NotNil(t, e)
	assert.Equal(t, "org.bluez.Error.Rejected", e.Name)
	assert.Equal(t, []interface{}{"Request was rejected."}, e.Body)

	e = ReqCanceled.DBusError()
	assert.Equal(t, "org.bluez.Error.Canceled", e.Name)
}

func TestToDBusError(t *testing.T) {
	assert.Nil(t, toDBusError(nil))
	assert.Equal(t, "org.bluez.Error.Canceled", toDBusError(ReqCanceled).Name)
	assert.Equal(t, "org.bluez.Error.Canceled", toDBusError(fmt.Errorf("user gave up: %w", ReqCanceled)).Name)
	assert.Equal(t, "org.bluez.Error.Rejected", toDBusError(errors.New("boom")).Name)
}
