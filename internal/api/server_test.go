package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/narvanalabs/qrscan/internal/api/handlers"
	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/camera/cameratest"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/decoder"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/internal/models"
	"github.com/narvanalabs/qrscan/internal/mount"
	"github.com/narvanalabs/qrscan/internal/scanner"
	"github.com/narvanalabs/qrscan/pkg/config"
)

type testServer struct {
	clock      *clock.FakeClock
	capture    *cameratest.Capture
	events     *logs.EventLog
	history    *history.ScanHistory
	mounts     *mount.Registry
	controller *scanner.Controller
	server     *Server
	http       *httptest.Server
}

func newTestServer(t *testing.T, labels ...string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.LoadWithDefaults()

	ts := &testServer{
		clock:   clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		capture: &cameratest.Capture{Devices: cameratest.Cameras(labels...)},
		mounts:  mount.NewRegistry(),
	}
	ts.events = logs.NewEventLog(cfg.Scanner.EventLogCapacity, ts.clock, logger)
	ts.history = history.New(cfg.Scanner.HistoryCapacity, ts.clock, logger)
	ts.controller = scanner.New(
		camera.NewNegotiator(ts.capture, logger),
		decoder.New(ts.capture, ts.clock, logger),
		ts.mounts,
		ts.events,
		ts.history,
		scanner.Options{
			MountID: cfg.Scanner.MountID,
			Profile: camera.DefaultProfiles().Lookup(camera.DeviceClassPhone),
			Clock:   ts.clock,
			Logger:  logger,
		},
	)
	watcher := camera.NewWatcher(ts.capture, time.Second, ts.clock, ts.events, logger)

	ts.server = NewServer(cfg, Deps{
		Scanner: ts.controller,
		Events:  ts.events,
		History: ts.history,
		Cameras: watcher,
		Mounts:  ts.mounts,
		Capture: ts.capture,
	}, logger)
	ts.http = httptest.NewServer(ts.server.Router())
	t.Cleanup(func() {
		ts.http.Close()
		ts.controller.Shutdown(context.Background())
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

type rawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads feed messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(rawMessage) bool) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg rawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func statusIs(state models.ScannerState) func(rawMessage) bool {
	return func(m rawMessage) bool {
		if m.Type != handlers.FeedStatus {
			return false
		}
		var s models.ScannerStatus
		return json.Unmarshal(m.Data, &s) == nil && s.State == state
	}
}

func waitForState(t *testing.T, c *scanner.Controller, want models.ScannerState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State() = %s, want %s", c.State(), want)
}

func qrImage(t *testing.T, content string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		t.Fatalf("encoding QR code: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	off := (400 - matrix.GetWidth()) / 2
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				img.SetGray(off+x, off+y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func decodeError(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestStartWithoutSurface(t *testing.T) {
	ts := newTestServer(t, "Back Camera")

	resp := ts.do(t, http.MethodPost, "/api/scanner/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	body := decodeError(t, resp)
	if body["code"] != "MOUNT_UNAVAILABLE" {
		t.Errorf("code = %v", body["code"])
	}
	if body["request_id"] == "" {
		t.Errorf("request_id missing")
	}
	if got := len(ts.capture.Requests()); got != 0 {
		t.Errorf("camera requested %d times without a surface", got)
	}
}

func TestFeedLifecycle(t *testing.T) {
	ts := newTestServer(t, "Front Camera", "Back Camera")
	ts.capture.Frame = qrImage(t, "https://example.com/a")

	conn := ts.dial(t)
	snap := readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })
	var snapshot handlers.Snapshot
	if err := json.Unmarshal(snap.Data, &snapshot); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status.State != models.ScannerStateIdle {
		t.Errorf("snapshot state = %s", snapshot.Status.State)
	}
	if !ts.mounts.Exists("qr-reader") {
		t.Fatalf("mount not registered while the surface is connected")
	}

	resp := ts.do(t, http.MethodPost, "/api/scanner/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d body = %v", resp.StatusCode, decodeError(t, resp))
	}
	readUntil(t, conn, statusIs(models.ScannerStateRunning))

	ts.clock.Advance(100 * time.Millisecond)
	scan := readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedScan })
	var ev history.Event
	if err := json.Unmarshal(scan.Data, &ev); err != nil {
		t.Fatalf("scan event: %v", err)
	}
	if ev.Entry == nil || ev.Entry.Content != "https://example.com/a" || !ev.Entry.IsLink {
		t.Errorf("scan entry = %+v", ev.Entry)
	}

	conn.Close()
	waitForState(t, ts.controller, models.ScannerStateIdle)
	if ts.mounts.Exists("qr-reader") {
		t.Errorf("mount still registered after disconnect")
	}
	for _, s := range ts.capture.Streams() {
		if !s.Stopped() {
			t.Errorf("stream left open after the last surface disconnected")
		}
	}
}

func TestFeedDoesNotRepeatSnapshotEntries(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	ts.events.Info("before connect")
	ts.history.Add("seen-before")

	conn := ts.dial(t)
	defer conn.Close()
	snap := readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })
	var snapshot handlers.Snapshot
	if err := json.Unmarshal(snap.Data, &snapshot); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	known := make(map[string]bool)
	for _, e := range snapshot.Logs {
		known[e.ID] = true
	}
	for _, e := range snapshot.History {
		known[e.ID] = true
	}
	if len(snapshot.History) != 1 || !known[snapshot.History[0].ID] {
		t.Fatalf("snapshot history = %+v", snapshot.History)
	}

	ts.history.Add("seen-after")
	ts.events.Info("after connect")

	var sawScan, sawLog bool
	readUntil(t, conn, func(m rawMessage) bool {
		switch m.Type {
		case handlers.FeedLog:
			var ev logs.Event
			if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Entry == nil {
				return false
			}
			if known[ev.Entry.ID] {
				t.Fatalf("log entry %q repeated after the snapshot", ev.Entry.Message)
			}
			sawLog = sawLog || ev.Entry.Message == "after connect"
		case handlers.FeedScan:
			var ev history.Event
			if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Entry == nil {
				return false
			}
			if known[ev.Entry.ID] {
				t.Fatalf("scan %q repeated after the snapshot", ev.Entry.Content)
			}
			sawScan = sawScan || ev.Entry.Content == "seen-after"
		}
		return sawScan && sawLog
	})
}

func TestSecondSurfaceKeepsScanning(t *testing.T) {
	ts := newTestServer(t, "Back Camera")

	first := ts.dial(t)
	readUntil(t, first, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })
	second := ts.dial(t)
	defer second.Close()
	readUntil(t, second, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })

	if resp := ts.do(t, http.MethodPost, "/api/scanner/start", handlers.StartRequest{DeviceID: "cam-0"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	first.Close()
	deadline := time.Now().Add(time.Second)
	for ts.mounts.Count("qr-reader") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := ts.controller.State(); got != models.ScannerStateRunning {
		t.Errorf("State() = %s, want running while a surface remains", got)
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	conn := ts.dial(t)
	defer conn.Close()
	readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })

	ts.do(t, http.MethodPost, "/api/scanner/start", nil)
	resp := ts.do(t, http.MethodPost, "/api/scanner/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if body := decodeError(t, resp); body["code"] != "CONFLICT" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestStartPermissionDenied(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	ts.capture.PermissionErr = camera.ErrPermissionDenied
	conn := ts.dial(t)
	defer conn.Close()
	readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })

	resp := ts.do(t, http.MethodPost, "/api/scanner/start", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	body := decodeError(t, resp)
	details, _ := body["details"].(map[string]any)
	status, _ := details["status"].(map[string]any)
	if status["status_message"] != scanner.StatusPermissionDenied || status["state"] != "idle" {
		t.Errorf("details.status = %v", status)
	}
}

func TestStopAndMode(t *testing.T) {
	ts := newTestServer(t, "Back Camera")

	resp := ts.do(t, http.MethodPost, "/api/scanner/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("idle stop status = %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/scanner/mode", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mode without zoomed = %d, want 400", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/scanner/mode", map[string]any{"zoomed": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mode status = %d", resp.StatusCode)
	}
	var status models.ScannerStatus
	json.NewDecoder(resp.Body).Decode(&status)
	if !status.Zoomed {
		t.Errorf("Zoomed = false after idle mode change")
	}
}

func TestCamerasPrompt(t *testing.T) {
	cases := []struct {
		labels []string
		code   int
		prompt bool
	}{
		{[]string{"Back Camera"}, http.StatusOK, false},
		{[]string{"Front Camera", "Back Camera"}, http.StatusOK, true},
		{nil, http.StatusNotFound, false},
	}
	for _, tc := range cases {
		ts := newTestServer(t, tc.labels...)
		resp := ts.do(t, http.MethodGet, "/api/cameras", nil)
		if resp.StatusCode != tc.code {
			t.Errorf("%v: status = %d, want %d", tc.labels, resp.StatusCode, tc.code)
			continue
		}
		if tc.code != http.StatusOK {
			continue
		}
		var body handlers.CamerasResponse
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Prompt != tc.prompt || len(body.Cameras) != len(tc.labels) {
			t.Errorf("%v: response = %+v", tc.labels, body)
		}
	}
}

func TestRecordsEndpoints(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	ts.events.Info("hello")
	ts.events.Error("boom", "detail")
	ts.history.Add("ABC123")

	resp := ts.do(t, http.MethodGet, "/api/logs?level=error", nil)
	var logsBody handlers.LogsResponse
	json.NewDecoder(resp.Body).Decode(&logsBody)
	if len(logsBody.Entries) != 1 || logsBody.Entries[0].Message != "boom" || logsBody.Capacity != 100 {
		t.Errorf("filtered logs = %+v", logsBody)
	}

	if resp := ts.do(t, http.MethodGet, "/api/logs?level=loud", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid level status = %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/api/history", nil)
	var historyBody handlers.HistoryResponse
	json.NewDecoder(resp.Body).Decode(&historyBody)
	if len(historyBody.Entries) != 1 || historyBody.Entries[0].Content != "ABC123" || historyBody.Entries[0].IsLink {
		t.Errorf("history = %+v", historyBody)
	}

	if resp := ts.do(t, http.MethodDelete, "/api/logs", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear logs status = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodDelete, "/api/history", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear history status = %d", resp.StatusCode)
	}
	if ts.events.Len() != 0 || ts.history.Len() != 0 {
		t.Errorf("records not cleared: logs=%d history=%d", ts.events.Len(), ts.history.Len())
	}
}

func TestClearHistoryForgetsRecentScans(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	ts.capture.Frame = qrImage(t, "ABC123")
	conn := ts.dial(t)
	defer conn.Close()
	readUntil(t, conn, func(m rawMessage) bool { return m.Type == handlers.FeedSnapshot })

	if resp := ts.do(t, http.MethodPost, "/api/scanner/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	readUntil(t, conn, statusIs(models.ScannerStateRunning))

	scanned := func(m rawMessage) bool {
		var ev history.Event
		return m.Type == handlers.FeedScan && json.Unmarshal(m.Data, &ev) == nil && ev.Kind == history.EventAdded
	}
	ts.clock.Advance(100 * time.Millisecond)
	readUntil(t, conn, scanned)

	if resp := ts.do(t, http.MethodDelete, "/api/history", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear history status = %d", resp.StatusCode)
	}

	ts.clock.Advance(100 * time.Millisecond)
	readUntil(t, conn, scanned)
	if ts.history.Len() != 1 {
		t.Errorf("history len = %d, want the rescanned code", ts.history.Len())
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	resp := ts.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestPageRenders(t *testing.T) {
	ts := newTestServer(t, "Back Camera")
	resp := ts.do(t, http.MethodGet, "/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{`id="qr-reader"`, "Event Log", "Scanned Values", "/api/feed", BadgeClasses()["idle"]} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestBadgeKind(t *testing.T) {
	cases := []struct {
		status models.ScannerStatus
		want   string
	}{
		{models.ScannerStatus{State: models.ScannerStateIdle}, "idle"},
		{models.ScannerStatus{State: models.ScannerStateRunning, IsRunning: true, StatusMessage: "ready"}, "running"},
		{models.ScannerStatus{State: models.ScannerStateRunning, IsRunning: true, StatusMessage: "already scanned: X"}, "duplicate"},
		{models.ScannerStatus{State: models.ScannerStateIdle, StatusMessage: "no camera found", IsErrorStatus: true}, "error"},
	}
	for _, tc := range cases {
		if got := BadgeKind(tc.status); got != tc.want {
			t.Errorf("BadgeKind(%+v) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestBadgeClassesMergeVariants(t *testing.T) {
	classes := BadgeClasses()
	running := classes["running"]
	if !strings.Contains(running, "bg-green-100") || strings.Contains(running, "bg-gray-100") {
		t.Errorf("running = %q", running)
	}
	dup := classes["duplicate"]
	if !strings.Contains(dup, "px-2") || strings.Contains(dup, "px-3") {
		t.Errorf("duplicate = %q", dup)
	}
	if !strings.Contains(classes["idle"], "bg-gray-100") {
		t.Errorf("idle = %q", classes["idle"])
	}
}
