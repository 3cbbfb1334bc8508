package production

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"obs-remote/internal/obsws"
	"obs-remote/internal/platform/metrics"
)

// Handler exposes session control endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: loggerOrDiscard(log), metrics: m}
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.Connect)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.Disconnect)
			r.Post("/provision", h.Provision)
			r.Get("/scenes", h.ListScenes)
			r.Post("/scenes/{scene}/activate", h.ActivateScene)
		})
	})
}

type connectRequest struct {
	IP       string `json:"ip"`
	Password string `json:"password"`
}

type provisionRequest struct {
	MatchID string `json:"match_id"`
}

type scenesResponse struct {
	Scenes []string `json:"scenes"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// Connect handles POST /sessions.
// Body: { "ip": "192.168.1.20", "password": "secret" }.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var body connectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid connect body", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, errors.New("invalid body"))
		return
	}
	if body.IP == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("ip is required"))
		return
	}

	info, err := h.svc.Connect(r.Context(), obsws.Credentials{IP: body.IP, Password: body.Password})
	if err != nil {
		h.log.Warn("connect failed", slog.String("ip", body.IP), slog.String("error", err.Error()))
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusCreated, info)
	if h.metrics != nil {
		h.metrics.IncSessionsOpened()
	}
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Sessions())
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Session(sessionID(r))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Disconnect handles DELETE /sessions/{session_id}.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := h.svc.Disconnect(id); err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Provision handles POST /sessions/{session_id}/provision.
// Body (optional): { "match_id": "m-42" }.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	var body provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid body"))
		return
	}

	scenes, err := h.svc.Provision(r.Context(), id, body.MatchID)
	if err != nil {
		h.log.Error("provision failed",
			slog.String("session_id", string(id)),
			slog.String("match_id", body.MatchID),
			slog.String("error", err.Error()))
		h.writeError(w, statusFor(err), err)
		var stepErr *StepError
		if h.metrics != nil && errors.As(err, &stepErr) {
			h.metrics.IncProvisionFailures()
		}
		return
	}

	h.log.Info("provisioned",
		slog.String("session_id", string(id)),
		slog.String("match_id", body.MatchID),
		slog.Int("scenes", len(scenes)))
	h.writeJSON(w, http.StatusOK, scenesResponse{Scenes: scenes})
	if h.metrics != nil {
		h.metrics.IncProvisioned()
	}
}

// ListScenes handles GET /sessions/{session_id}/scenes.
func (h *Handler) ListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := h.svc.ListScenes(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, scenesResponse{Scenes: scenes})
}

// ActivateScene handles POST /sessions/{session_id}/scenes/{scene}/activate.
func (h *Handler) ActivateScene(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	scene, err := sceneParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid scene name"))
		return
	}

	if err = h.svc.ActivateScene(r.Context(), id, scene); err != nil {
		h.log.Warn("activate scene failed",
			slog.String("session_id", string(id)),
			slog.String("scene", scene),
			slog.String("error", err.Error()))
		h.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	if h.metrics != nil {
		h.metrics.IncSceneSwitches()
	}
}

// sceneParam returns the decoded {scene} segment. chi matches on RawPath when
// it is set, leaving the segment escaped; otherwise it is already decoded.
func sceneParam(r *http.Request) (string, error) {
	scene := chi.URLParam(r, "scene")
	if r.URL.RawPath == "" {
		return scene, nil
	}
	return url.PathUnescape(scene)
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "session_id"))
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		authErr *obsws.AuthenticationError
		rejErr  *obsws.RemoteRejectionError
		toErr   *obsws.RequestTimeoutError
		connErr *obsws.ConnectivityError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoScenes), errors.Is(err, ErrNoCameraSource), errors.Is(err, ErrEmptySceneName), errors.Is(err, ErrEmptyLayout):
		return http.StatusBadRequest
	case errors.Is(err, obsws.ErrNotConnected), errors.Is(err, obsws.ErrConnectInProgress):
		return http.StatusConflict
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &rejErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &toErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: obsws.IsRetryable(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}
