package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/app"
	"github.com/ternarybob/pipewatch/internal/backendsim"
	"github.com/ternarybob/pipewatch/internal/common"
)

func newTestServer(t *testing.T, mutate func(*common.Config)) (*app.App, *httptest.Server) {
	t.Helper()

	sim := backendsim.New(backendsim.Config{TotalUnits: 5}, arbor.NewLogger())
	backend := httptest.NewServer(sim)
	t.Cleanup(func() {
		backend.Close()
		sim.Close()
	})

	config := common.NewDefaultConfig()
	config.Backend.BaseURL = backend.URL
	config.Backend.RateLimit = 0
	if mutate != nil {
		mutate(config)
	}

	application, err := app.New(config, arbor.NewLogger())
	require.NoError(t, err)
	application.Start()
	t.Cleanup(func() { application.Close() })

	srv := New(application)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return application, ts
}

func TestServer_SystemRoutes(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 7, health["kinds"])

	resp, err = http.Get(ts.URL + "/api/nothing-here")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/shutdown", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no shutdown hook configured")
}

func TestServer_MountedJobsAndPress(t *testing.T) {
	_, ts := newTestServer(t, func(c *common.Config) {
		c.Kinds["datamart"] = common.KindConfig{Disabled: true, BasePath: "/api/datamart"}
	})

	resp, err := http.Get(ts.URL + "/api/jobs/news")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"phase":"inactive"`, "mounted at startup")

	resp, err = http.Get(ts.URL + "/api/jobs/datamart")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/jobs/news/start", "application/json", nil)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"status":"accepted"`)
}

func TestServer_WebSocketReceivesNotice(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := http.Post(ts.URL+"/api/jobs/reports/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "notice" && strings.Contains(string(msg.Payload), `"code":"started"`) {
			return
		}
	}
}
