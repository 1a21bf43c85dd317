package microservice_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/go-dysonlocal/pkg/codec"
	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter/mqtttest"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHandler(t *testing.T) {
	// Arrange
	fake := newFanDevice()
	router := newHostRouter(map[string]*mqtttest.Device{"192.168.1.20": fake})
	m := microservice.NewDeviceManager(testManagerConfig(), newResolver(t), zerolog.Nop())
	s := newSession(t, router.Factory())
	require.NoError(t, m.Add(s, "Bedroom", "192.168.1.20"))
	startManager(t, m)

	r := chi.NewRouter()
	microservice.NewStatusHandler(m, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/devices")
		require.NoError(t, err)
		defer resp.Body.Close()

		var devices []microservice.DeviceStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
		require.Len(t, devices, 1)
		assert.Equal(t, fanSerial, devices[0].Serial)
		assert.Equal(t, "connected", devices[0].State)
		assert.Equal(t, "192.168.1.20", devices[0].Host)
	})

	t.Run("discovery", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/discovery")
		require.NoError(t, err)
		defer resp.Body.Close()

		var records []types.DiscoveryRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		require.Len(t, records, 1)
		assert.Equal(t, fanSerial, records[0].Serial)
		assert.Equal(t, "192.168.1.20", records[0].Address)
	})

	t.Run("detail", func(t *testing.T) {
		require.NoError(t, s.SetSpeed(6))

		resp, err := http.Get(srv.URL + "/devices/" + fanSerial)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Serial     string         `json:"serial"`
			Name       string         `json:"name"`
			Attributes map[string]any `json:"attributes"`
			Pending    []any          `json:"pending"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Bedroom", body.Name)
		assert.Equal(t, true, body.Attributes["is_on"])
		assert.EqualValues(t, 6, body.Attributes["speed"])
		assert.NotEmpty(t, body.Pending)
	})

	t.Run("unknown device", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/devices/XXX-EU-UNK0000A")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("refresh", func(t *testing.T) {
		before := countMsgs(fake, codec.MsgRequestCurrentState)

		resp, err := http.Post(srv.URL+"/devices/"+fanSerial+"/refresh", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, before+1, countMsgs(fake, codec.MsgRequestCurrentState))
	})

	t.Run("refresh disconnected", func(t *testing.T) {
		s.Disconnect()

		resp, err := http.Post(srv.URL+"/devices/"+fanSerial+"/refresh", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
