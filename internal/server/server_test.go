package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/roverscan/rovermap/internal/engine"
	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	filestore "github.com/roverscan/rovermap/internal/storage/file"
	"github.com/roverscan/rovermap/internal/transport"
	"github.com/roverscan/rovermap/pkg/streaming"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu   sync.Mutex
	sess *session.Session
	got  []rover.Command
	err  error
	subs chan session.Snapshot
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	return &fakeEngine{sess: testSession(t), subs: make(chan session.Snapshot, 4)}
}

func (f *fakeEngine) Submit(_ context.Context, cmd rover.Command) (session.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cmd)
	if f.err != nil {
		return session.Ack{}, f.err
	}
	if _, err := f.sess.Move(cmd); err != nil {
		return session.Ack{Success: false, Message: err.Error(), Pose: f.sess.LivePose()}, nil
	}
	return session.Ack{Success: true, Message: "ok", Pose: f.sess.LivePose()}, nil
}

func (f *fakeEngine) Defaults() rover.Defaults {
	return rover.Defaults{Speed: 5, Turn: 5}
}

func (f *fakeEngine) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.sess.Snapshot()
	snap.Frame = 11
	return snap
}

func (f *fakeEngine) Document() (*session.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.Document()
}

func (f *fakeEngine) Subscribe(int) (<-chan session.Snapshot, func()) {
	return f.subs, func() {}
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Coverage = session.CoverageConfig{Width: 800, Height: 800, CellSize: 4}
	s, err := session.New(cfg)
	require.NoError(t, err)
	return s
}

// savedSession stores a session that drove an L and placed one resource.
func savedSession(t *testing.T, store storage.Backend, name string) {
	t.Helper()
	s := testSession(t)
	for _, cmd := range []rover.Command{
		{Kind: rover.DriveForward, Magnitude: 10},
		{Kind: rover.TurnLeft, Magnitude: 90},
		{Kind: rover.DriveForward, Magnitude: 10},
	} {
		_, err := s.Move(cmd)
		require.NoError(t, err)
	}
	_, err := s.PlaceResource(5, "ice", 2)
	require.NoError(t, err)
	doc, err := s.Document()
	require.NoError(t, err)
	_, err = store.Save(context.Background(), name, doc)
	require.NoError(t, err)
}

func newTestServer(t *testing.T, e Engine, store storage.Backend) *httptest.Server {
	t.Helper()
	s := New(e, store, geo.Georeference{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func newStore(t *testing.T) *filestore.Backend {
	t.Helper()
	store := filestore.New(filestore.Config{Dir: filepath.Join(t.TempDir(), "maps")}, zerolog.Nop())
	require.NoError(t, store.Init())
	return store
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthcheck(t *testing.T) {
	ts := newTestServer(t, newFakeEngine(t), nil)

	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/healthcheck", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, newFakeEngine(t), nil)

	var snap session.Snapshot
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/status", &snap))
	assert.Equal(t, uint64(11), snap.Frame)
	assert.Contains(t, snap.Status, "Odometer")
}

func TestCommands(t *testing.T) {
	fake := newFakeEngine(t)
	ts := newTestServer(t, fake, nil)

	var ack session.Ack
	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/commands", `{"kind":"DriveForward","magnitude":3}`, &ack))
	assert.True(t, ack.Success)
	assert.InDelta(t, 3.0, ack.Pose.Position.X, 1e-9)

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/commands", `{"text":"Reverse 0"}`, &ack))
	assert.False(t, ack.Success)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/commands", `{"kind":"Hover"}`, &body))
	assert.Contains(t, body["error"], "unknown command")
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/commands", `{`, nil))

	fake.err = fmt.Errorf("%w: DriveForward", engine.ErrBusy)
	assert.Equal(t, http.StatusServiceUnavailable, post(t, ts.URL+"/commands", `{"kind":"DriveForward"}`, nil))
}

func TestListMaps(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		ts := newTestServer(t, newFakeEngine(t), nil)

		var maps []storage.MapInfo
		assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps", &maps))
		assert.Empty(t, maps)
	})

	t.Run("saved maps", func(t *testing.T) {
		store := newStore(t)
		savedSession(t, store, "beta")
		savedSession(t, store, "alpha")
		ts := newTestServer(t, newFakeEngine(t), store)

		var maps []storage.MapInfo
		assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps", &maps))
		require.Len(t, maps, 2)
		assert.Equal(t, "alpha.json", maps[0].Name)
		assert.Equal(t, "beta.json", maps[1].Name)
	})
}

func TestGetMap(t *testing.T) {
	store := newStore(t)
	savedSession(t, store, "site")
	fake := newFakeEngine(t)
	ts := newTestServer(t, fake, store)

	var doc session.Document
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps/site", &doc))
	require.NotNil(t, doc.RoverPos)
	assert.InDelta(t, 10.0, doc.RoverPos[0], 1e-9)
	assert.InDelta(t, 10.0, doc.RoverPos[1], 1e-9)
	assert.Len(t, doc.Resources, 1)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps/site.json", nil))
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/maps/missing", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/maps/-bad", nil))

	_, err := fake.Submit(context.Background(), rover.Command{Kind: rover.DriveForward, Magnitude: 4})
	require.NoError(t, err)
	var live session.Document
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps/current", &live))
	require.NotNil(t, live.RoverPos)
	assert.InDelta(t, 4.0, live.RoverPos[0], 1e-9)
}

func TestGetMap_NoStore(t *testing.T) {
	ts := newTestServer(t, newFakeEngine(t), nil)

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/maps/site", nil))
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/maps/current", nil))
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Type     string `json:"type"`
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestGetGeoJSON(t *testing.T) {
	store := newStore(t)
	savedSession(t, store, "site")
	ts := newTestServer(t, newFakeEngine(t), store)

	resp, err := http.Get(ts.URL + "/maps/site/geojson")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc featureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	assert.Equal(t, "path", fc.Features[0].Properties["kind"])
	assert.Equal(t, "Point", fc.Features[1].Geometry.Type)
	assert.Equal(t, "rover", fc.Features[1].Properties["kind"])
	assert.Equal(t, "resource", fc.Features[2].Properties["kind"])
	assert.Equal(t, "ice", fc.Features[2].Properties["label"])

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/maps/missing/geojson", nil))
}

func TestFeatureCollection(t *testing.T) {
	s := testSession(t)
	_, err := s.PlaceObstacle(20, "rock", 0)
	require.NoError(t, err)
	doc, err := s.Document()
	require.NoError(t, err)

	fc, err := FeatureCollection(doc, geo.Georeference{OriginLon: 10, OriginLat: 50})
	require.NoError(t, err)
	require.Len(t, fc, 2, "rover and obstacle, no path yet")

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	var parsed featureCollection
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "rover", parsed.Features[0].Properties["kind"])
	assert.Equal(t, "LineString", parsed.Features[1].Geometry.Type)
	assert.Equal(t, "rock", parsed.Features[1].Properties["label"])

	lon, lat := geo.Georeference{OriginLon: 10, OriginLat: 50}.LonLat(geo.Vec{})
	assert.InDelta(t, 10.0, lon, 1e-6)
	assert.InDelta(t, 50.0, lat, 1e-6)
}

func dialLive(t *testing.T, ts *httptest.Server) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/live", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := streaming.Decode(data)
	require.NoError(t, err)
	return env
}

// readUntil skips snapshots until a message of msgType arrives.
func readUntil(t *testing.T, conn *ws.Conn, msgType string) streaming.Envelope {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == msgType {
			return env
		}
	}
}

func TestLive_Snapshots(t *testing.T) {
	fake := newFakeEngine(t)
	ts := newTestServer(t, fake, nil)
	conn := dialLive(t, ts)

	env := readEnvelope(t, conn)
	assert.Equal(t, streaming.TypeSnapshot, env.Type)
	var first session.Snapshot
	require.NoError(t, env.Into(&first))
	assert.Equal(t, uint64(11), first.Frame)

	fake.subs <- session.Snapshot{Frame: 12}
	env = readEnvelope(t, conn)
	var next session.Snapshot
	require.NoError(t, env.Into(&next))
	assert.Equal(t, uint64(12), next.Frame)
}

func TestLive_Commands(t *testing.T) {
	fake := newFakeEngine(t)
	ts := newTestServer(t, fake, nil)
	conn := dialLive(t, ts)

	msg, err := streaming.Encode(streaming.TypeCommand, LiveCommand{ID: "a", Request: transport.Request{Text: "DriveForward 2"}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, msg))

	var ack LiveAck
	require.NoError(t, readUntil(t, conn, streaming.TypeAck).Into(&ack))
	assert.Equal(t, "a", ack.ID)
	assert.True(t, ack.Success)
	assert.InDelta(t, 2.0, ack.Pose.Position.X, 1e-9)

	msg, err = streaming.Encode(streaming.TypeCommand, LiveCommand{ID: "b", Request: transport.Request{Text: "Hover"}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, msg))
	require.NoError(t, readUntil(t, conn, streaming.TypeAck).Into(&ack))
	assert.Equal(t, "b", ack.ID)
	assert.False(t, ack.Success)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"dance","payload":{}}`)))
	var e streaming.ErrorMessage
	require.NoError(t, readUntil(t, conn, streaming.TypeError).Into(&e))
	assert.Contains(t, e.Message, "dance")
}
