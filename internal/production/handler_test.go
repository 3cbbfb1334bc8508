package production

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"obs-remote/internal/obsws"
	"obs-remote/internal/platform/metrics"
)

type testServer struct {
	router  *chi.Mux
	pool    *controllerPool
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	pool := &controllerPool{}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(NewInMemoryRepository(), pool.factory, Config{OverlayBaseURL: "http://localhost:3000/overlays"}, log)
	m := metrics.New()
	h := NewHandler(svc, log, m)

	r := chi.NewRouter()
	h.Routes(r)
	return &testServer{router: r, pool: pool, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) connect(t *testing.T) SessionInfo {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/sessions", map[string]string{"ip": "192.168.1.20", "password": "secret"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("connect: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var info SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return info
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

// counterValue sums every sample of the named counter family.
func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}

func TestHandler_Connect(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)

	if info.ID == "" || info.IP != "192.168.1.20" || info.State != "identified" {
		t.Errorf("unexpected session: %+v", info)
	}
	if got := s.pool.last().creds.Password; got != "secret" {
		t.Errorf("password not forwarded, got %q", got)
	}
	if v := counterValue(t, s.metrics, "obsremote_sessions_opened_total"); v != 1 {
		t.Errorf("sessions_opened_total: got %v", v)
	}
}

func TestHandler_Connect_bad_request(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/sessions", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body: expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/sessions", map[string]string{"password": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ip: expected 400, got %d", rec.Code)
	}
}

func TestHandler_Connect_errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"auth", &obsws.AuthenticationError{Reason: "rejected by remote"}, http.StatusUnauthorized, false},
		{"unreachable", &obsws.ConnectivityError{Op: "dial", Err: errors.New("connection refused")}, http.StatusBadGateway, true},
		{"in_progress", obsws.ErrConnectInProgress, http.StatusConflict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.pool.connectErr = tt.err

			rec := s.do(t, http.MethodPost, "/sessions", map[string]string{"ip": "10.0.0.1"})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Retryable != tt.retryable {
				t.Errorf("retryable: got %v want %v", resp.Retryable, tt.retryable)
			}
			if resp.Error == "" {
				t.Error("error message should be set")
			}
		})
	}
}

func TestHandler_GetAndListSessions(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)

	rec := s.do(t, http.MethodGet, "/sessions/"+string(info.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"scenes":[]`) {
		t.Errorf("scenes should encode as empty array: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/sessions", nil)
	var list []SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].ID != info.ID {
		t.Errorf("list: err=%v list=%+v", err, list)
	}

	rec = s.do(t, http.MethodGet, "/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
}

func TestHandler_ListSessions_empty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/sessions", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", rec.Body.String())
	}
}

func TestHandler_Disconnect(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)

	rec := s.do(t, http.MethodDelete, "/sessions/"+string(info.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if s.pool.last().disconnects != 1 {
		t.Error("controller should be disconnected")
	}

	rec = s.do(t, http.MethodDelete, "/sessions/"+string(info.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestHandler_Provision(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)

	rec := s.do(t, http.MethodPost, "/sessions/"+string(info.ID)+"/provision", map[string]string{"match_id": "m-42"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp scenesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Scenes) != 10 || resp.Scenes[0] != "mainScene" {
		t.Errorf("unexpected scenes: %v", resp.Scenes)
	}
	if s.pool.last().program != "mainScene" {
		t.Errorf("program scene: got %q", s.pool.last().program)
	}
	if v := counterValue(t, s.metrics, "obsremote_provision_success_total"); v != 1 {
		t.Errorf("provision_success_total: got %v", v)
	}
}

func TestHandler_Provision_empty_body(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)

	rec := s.do(t, http.MethodPost, "/sessions/"+string(info.ID)+"/provision", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	url := s.pool.last().callsOf(obsws.RequestCreateInput)[0].Params.(obsws.CreateInputParams).InputSettings["url"]
	if url != "http://localhost:3000/overlays/main" {
		t.Errorf("overlay url without match: got %v", url)
	}
}

func TestHandler_Provision_errors(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	path := "/sessions/" + string(info.ID) + "/provision"

	rec := s.do(t, http.MethodPost, path, "{")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}

	s.pool.last().failOn[obsws.RequestCreateScene] = &obsws.RequestTimeoutError{RequestType: obsws.RequestCreateScene, RequestID: "r1"}
	rec = s.do(t, http.MethodPost, path, nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("timeout: expected 504, got %d", rec.Code)
	}
	if !decodeError(t, rec).Retryable {
		t.Error("timeout should be retryable")
	}
	if v := counterValue(t, s.metrics, "obsremote_provision_failures_total"); v != 1 {
		t.Errorf("provision_failures_total: got %v", v)
	}

	rec = s.do(t, http.MethodPost, "/sessions/missing/provision", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session: expected 404, got %d", rec.Code)
	}
	if v := counterValue(t, s.metrics, "obsremote_provision_failures_total"); v != 1 {
		t.Errorf("provision_failures_total after 404: got %v want 1", v)
	}
}

func TestHandler_ListScenes(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	s.pool.last().scenes = []string{"mainScene", "wicketScene"}

	rec := s.do(t, http.MethodGet, "/sessions/"+string(info.ID)+"/scenes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp scenesResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Scenes) != 2 || resp.Scenes[0] != "mainScene" || resp.Scenes[1] != "wicketScene" {
		t.Errorf("unexpected scenes: %v", resp.Scenes)
	}
}

func TestHandler_ActivateScene(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	s.pool.last().scenes = []string{"mainScene", "Innings Break"}
	base := "/sessions/" + string(info.ID) + "/scenes/"

	rec := s.do(t, http.MethodPost, base+"Innings%20Break/activate", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if s.pool.last().program != "Innings Break" {
		t.Errorf("program scene: got %q", s.pool.last().program)
	}

	rec = s.do(t, http.MethodPost, base+"ghostScene/activate", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown scene: expected 422, got %d", rec.Code)
	}
	if decodeError(t, rec).Retryable {
		t.Error("remote rejection should not be retryable")
	}
}

func TestHandler_ActivateScene_escaped_names(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	s.pool.last().scenes = []string{"Score 100%", "a%41", "aA", "x/y"}
	base := "/sessions/" + string(info.ID) + "/scenes/"

	tests := []struct {
		segment string
		want    string
	}{
		{"Score%20100%25", "Score 100%"},
		{"a%2541", "a%41"},
		{"x%2Fy", "x/y"},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPost, base+tt.segment+"/activate", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: expected 204, got %d: %s", tt.segment, rec.Code, rec.Body.String())
			continue
		}
		if got := s.pool.last().program; got != tt.want {
			t.Errorf("%s: program scene %q, want %q", tt.segment, got, tt.want)
		}
	}
}

func TestHandler_Provision_failure_metric_counts_runs_only(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	path := "/sessions/" + string(info.ID) + "/provision"

	s.do(t, http.MethodPost, "/sessions/missing/provision", nil)
	s.do(t, http.MethodPost, path, "{")
	if v := counterValue(t, s.metrics, "obsremote_provision_failures_total"); v != 0 {
		t.Errorf("requests rejected before any step ran: got %v want 0", v)
	}

	s.pool.last().failOn[obsws.RequestSetCurrentProgramScene] = &obsws.RemoteRejectionError{Code: 600}
	rec := s.do(t, http.MethodPost, path, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if v := counterValue(t, s.metrics, "obsremote_provision_failures_total"); v != 1 {
		t.Errorf("aborted run: got %v want 1", v)
	}
}

func TestHandler_ActivateScene_not_connected(t *testing.T) {
	s := newTestServer(t)
	info := s.connect(t)
	ctrl := s.pool.last()
	ctrl.mu.Lock()
	ctrl.state = obsws.StateDisconnected
	ctrl.mu.Unlock()

	rec := s.do(t, http.MethodPost, "/sessions/"+string(info.ID)+"/scenes/mainScene/activate", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrSessionNotFound, http.StatusNotFound},
		{ErrNoScenes, http.StatusBadRequest},
		{ErrEmptySceneName, http.StatusBadRequest},
		{obsws.ErrNotConnected, http.StatusConflict},
		{&obsws.AuthenticationError{Reason: "x"}, http.StatusUnauthorized},
		{&obsws.RemoteRejectionError{Code: 600}, http.StatusUnprocessableEntity},
		{&obsws.RequestTimeoutError{}, http.StatusGatewayTimeout},
		{&obsws.ConnectivityError{Op: "read", Err: obsws.ErrClosed}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
