package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledWithoutLicense(t *testing.T) {
	app, err := New(Config{Enabled: true, AppName: "carpool"})

	require.NoError(t, err)
	assert.False(t, app.IsEnabled())
}

func TestDisabledApp_IsNoop(t *testing.T) {
	app, err := New(Config{})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		app.RecordSeatsReserved("ride-1", 2, 1)
		app.RecordSeatsReleased("ride-1", 2, 3)
		app.RecordRideCreated(4, 12.5)
		app.RecordRedisPoolStats(map[string]interface{}{"hits": uint32(3)})
		app.Shutdown(time.Second)
	})
}

func TestNilApp_IsDisabled(t *testing.T) {
	var app *NewRelicApp

	assert.False(t, app.IsEnabled())
	assert.NotPanics(t, func() { app.RecordSeatsReserved("ride-1", 1, 0) })
}
