package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"ringsim/internal/config"
	"ringsim/internal/store"
)

const testPassword = "hunter22"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf := config.Default()
	conf.Solver.Seed = 1
	conf.Solver.Workers = 2
	conf.Space.Length = 16
	conf.Space.Height = 16
	conf.Grid.Cols = 12
	conf.Grid.Rows = 12
	conf.Ring.NumRings = 4
	conf.Invasion.Disable = true
	conf.Server.TickRate = 200
	conf.Server.BroadcastEvery = 1
	conf.Server.StatsEvery = 1
	conf.Server.OperatorPassword = testPassword
	if err := conf.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return conf
}

type testServer struct {
	srv    *httptest.Server
	wsURL  string
	runner *Runner
	db     *store.DB
}

// startTestServer runs a ring simulation behind an httptest.Server
func startTestServer(t *testing.T) *testServer {
	t.Helper()
	conf := testConfig(t)

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	rec := store.NewRecorder(db)
	t.Cleanup(rec.Stop)

	sim, err := NewSim(conf)
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	auth, err := NewAuth(db, conf.Server.OperatorUser, conf.Server.OperatorPassword)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	runner := NewRunner(sim, conf, rec, db)
	hub := NewHub(runner, auth, db)
	go hub.Run()
	go runner.Run()
	t.Cleanup(runner.Stop)

	srv := httptest.NewServer(SetupRoutes(hub, ""))
	t.Cleanup(srv.Close)

	return &testServer{
		srv:    srv,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		runner: runner,
		db:     db,
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads messages until a JSON one arrives, skipping frames.
func readEnvelope(t *testing.T, conn *websocket.Conn) InEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	}
}

// readFrame reads messages until a binary frame arrives.
func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		var f Frame
		if err := msgpack.Unmarshal(raw, &f); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return f
	}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func expect(t *testing.T, env InEnvelope, msgType string, into interface{}) {
	t.Helper()
	if env.T != msgType {
		t.Fatalf("expected %s, got %s (%s)", msgType, env.T, env.D)
	}
	if into != nil {
		if err := json.Unmarshal(env.D, into); err != nil {
			t.Fatalf("decode %s: %v", msgType, err)
		}
	}
}

func login(t *testing.T, ts *testServer, user, password string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{User: user, Password: password})
	resp, err := http.Post(ts.srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func operatorConn(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	resp := login(t, ts, "operator", testPassword)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var lr LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil || lr.Token == "" {
		t.Fatalf("login response: %v %+v", err, lr)
	}

	conn := dialWS(t, ts.wsURL)
	expect(t, readEnvelope(t, conn), MsgWelcome, nil)
	sendMsg(t, conn, MsgAuth, AuthMsg{Token: lr.Token})
	var ok AuthOKMsg
	expect(t, readEnvelope(t, conn), MsgAuthOK, &ok)
	if ok.User != "operator" {
		t.Errorf("auth user = %q", ok.User)
	}
	return conn
}

func TestWelcomeAndFrames(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL)

	var st Status
	expect(t, readEnvelope(t, conn), MsgWelcome, &st)
	if st.System != "ring" || st.Active != 4 || st.Operator {
		t.Errorf("unexpected welcome: %+v", st)
	}

	f := readFrame(t, conn)
	if len(f.Rings) != 4 || len(f.Particles) != 0 {
		t.Fatalf("frame has %d rings and %d particles", len(f.Rings), len(f.Particles))
	}
	for _, r := range f.Rings {
		if len(r.X) != 10 || len(r.Y) != 10 || r.UID < 1 {
			t.Errorf("bad ring in frame: uid %d, %d vertices", r.UID, len(r.X))
		}
	}
	next := readFrame(t, conn)
	if next.Step <= f.Step {
		t.Errorf("frames not advancing: %d then %d", f.Step, next.Step)
	}
}

func TestControlRequiresAuth(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL)
	expect(t, readEnvelope(t, conn), MsgWelcome, nil)

	sendMsg(t, conn, MsgPause, nil)
	var e ErrorMsg
	expect(t, readEnvelope(t, conn), MsgError, &e)
	if e.Msg != "not authenticated" {
		t.Errorf("error = %q", e.Msg)
	}

	sendMsg(t, conn, MsgAuth, AuthMsg{Token: "garbage"})
	expect(t, readEnvelope(t, conn), MsgError, nil)

	if ts.runner.Status().Paused {
		t.Error("unauthenticated pause was applied")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := startTestServer(t)
	if resp := login(t, ts, "operator", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", resp.StatusCode)
	}
	if resp := login(t, ts, "someone", testPassword); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", resp.StatusCode)
	}

	resp, err := http.Get(ts.srv.URL + "/api/login")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET login status %d, want 405", resp.StatusCode)
	}
}

func TestOperatorPauseSaveLoad(t *testing.T) {
	ts := startTestServer(t)
	conn := operatorConn(t, ts)

	sendMsg(t, conn, MsgPause, nil)
	var st Status
	expect(t, readEnvelope(t, conn), MsgState, &st)
	if !st.Paused || !st.Operator {
		t.Fatalf("after pause: %+v", st)
	}
	paused := st.Step
	time.Sleep(50 * time.Millisecond)
	if got := ts.runner.Status().Step; got != paused {
		t.Errorf("runner stepped while paused: %d -> %d", paused, got)
	}

	sendMsg(t, conn, MsgSave, SaveMsg{Label: "paused"})
	var saved SavedMsg
	expect(t, readEnvelope(t, conn), MsgSaved, &saved)
	if saved.ID == 0 || saved.Step != paused || saved.Label != "paused" {
		t.Errorf("unexpected save: %+v", saved)
	}

	resp, err := http.Get(ts.srv.URL + "/api/checkpoints")
	if err != nil {
		t.Fatal(err)
	}
	var rows []store.CheckpointRow
	json.NewDecoder(resp.Body).Decode(&rows)
	resp.Body.Close()
	if len(rows) != 1 || rows[0].ID != saved.ID || rows[0].Rings != 4 {
		t.Errorf("checkpoint listing: %+v", rows)
	}

	sendMsg(t, conn, MsgResume, nil)
	expect(t, readEnvelope(t, conn), MsgState, &st)
	if st.Paused {
		t.Error("still paused after resume")
	}
	time.Sleep(50 * time.Millisecond)

	sendMsg(t, conn, MsgLoad, LoadMsg{ID: saved.ID})
	expect(t, readEnvelope(t, conn), MsgLoaded, &st)
	if st.Active != 4 || st.Step < paused {
		t.Errorf("after load: %+v", st)
	}

	sendMsg(t, conn, MsgLoad, LoadMsg{ID: saved.ID + 100})
	var e ErrorMsg
	expect(t, readEnvelope(t, conn), MsgError, &e)
	if e.Msg != "checkpoint not found" {
		t.Errorf("error = %q", e.Msg)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := startTestServer(t)
	conn := dialWS(t, ts.wsURL)
	readFrame(t, conn)
	readFrame(t, conn)

	resp, err := http.Get(ts.srv.URL + "/api/stats?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Status Status           `json:"status"`
		Recent []store.StepStat `json:"recent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status.Viewers != 1 || body.Status.Step < 2 {
		t.Errorf("unexpected status: %+v", body.Status)
	}
	if len(body.Recent) > 5 {
		t.Errorf("limit ignored: %d stats", len(body.Recent))
	}
}

func TestQRCode(t *testing.T) {
	ts := startTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/qr?url=http://example.org/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var head [8]byte
	if _, err := io.ReadFull(resp.Body, head[:]); err != nil {
		t.Fatal(err)
	}
	if string(head[1:4]) != "PNG" {
		t.Errorf("not a png: % x", head)
	}
}
