package production

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"obs-remote/internal/obsws"
	"obs-remote/internal/platform/logger"
)

// DefaultCameraSource is the name given to the camera input on the main scene.
const DefaultCameraSource = "Main Camera"

// ControllerFactory builds a fresh, disconnected Controller for a new session.
type ControllerFactory func() Controller

// Config holds the production settings shared by every session.
type Config struct {
	OverlayBaseURL  string
	CameraSource    string
	CameraInputKind string
	// Layout overrides DefaultLayout when non-empty.
	Layout []LayoutEntry
}

// Service runs connect, provisioning and scene switching per session and
// keeps the sessions in a Repository.
type Service struct {
	repo          Repository
	newController ControllerFactory
	cfg           Config
	log           *slog.Logger
}

// NewService returns a Service. Missing Config fields take their defaults.
func NewService(repo Repository, newController ControllerFactory, cfg Config, log *slog.Logger) *Service {
	if cfg.CameraSource == "" {
		cfg.CameraSource = DefaultCameraSource
	}
	if cfg.CameraInputKind == "" {
		cfg.CameraInputKind = obsws.InputKindCamera
	}
	if len(cfg.Layout) == 0 {
		cfg.Layout = DefaultLayout()
	}
	return &Service{repo: repo, newController: newController, cfg: cfg, log: loggerOrDiscard(log)}
}

// Connect opens a new session against the remote at creds.IP. The session is
// only registered once the handshake succeeded.
func (s *Service) Connect(ctx context.Context, creds obsws.Credentials) (SessionInfo, error) {
	ctrl := s.newController()
	if err := ctrl.Connect(ctx, creds); err != nil {
		return SessionInfo{}, err
	}

	sess := &Session{
		ID:         SessionID(uuid.NewString()),
		IP:         creds.IP,
		Controller: ctrl,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Add(sess); err != nil {
		_ = ctrl.Disconnect()
		return SessionInfo{}, err
	}

	s.log.Info("session connected", slog.String("session_id", string(sess.ID)), slog.String("ip", creds.IP))
	info, _ := s.repo.Snapshot(sess.ID)
	return info, nil
}

// Disconnect closes the session and forgets it.
func (s *Service) Disconnect(id SessionID) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.log.Info("session disconnected", slog.String("session_id", string(id)))
	return sess.Controller.Disconnect()
}

// Session returns a snapshot of the session.
func (s *Service) Session(id SessionID) (SessionInfo, error) {
	info, ok := s.repo.Snapshot(id)
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return info, nil
}

// Sessions returns snapshots of every session.
func (s *Service) Sessions() []SessionInfo {
	return s.repo.List()
}

// SceneSpecs returns the desired scenes for matchID.
func (s *Service) SceneSpecs(matchID string) ([]SceneSpec, error) {
	return BuildSceneSpecs(s.cfg.OverlayBaseURL, matchID, s.cfg.Layout)
}

// Provision provisions the session's remote for matchID and returns the
// refreshed scene inventory.
func (s *Service) Provision(ctx context.Context, id SessionID, matchID string) ([]string, error) {
	ctrl, ok := s.repo.Controller(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	specs, err := s.SceneSpecs(matchID)
	if err != nil {
		return nil, err
	}

	log := s.log.With(slog.String("session_id", string(id)))
	scenes, err := NewProvisioner(ctrl, log, s.cfg.CameraInputKind).Provision(ctx, specs, s.cfg.CameraSource)
	if err != nil {
		return nil, err
	}
	s.repo.SetScenes(id, scenes)
	return scenes, nil
}

// ListScenes returns the scenes currently on the session's remote.
func (s *Service) ListScenes(ctx context.Context, id SessionID) ([]string, error) {
	ctrl, ok := s.repo.Controller(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	scenes, err := NewSwitcher(ctrl, s.log).ListScenes(ctx)
	if err != nil {
		return nil, err
	}
	s.repo.SetScenes(id, scenes)
	return scenes, nil
}

// ActivateScene switches the session's program scene.
func (s *Service) ActivateScene(ctx context.Context, id SessionID, name string) error {
	ctrl, ok := s.repo.Controller(id)
	if !ok {
		return ErrSessionNotFound
	}
	return NewSwitcher(ctrl, s.log.With(slog.String("session_id", string(id)))).ActivateScene(ctx, name)
}

// ActiveSessionCount returns the number of identified sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}

// Close disconnects every session.
func (s *Service) Close() {
	for _, info := range s.repo.List() {
		if err := s.Disconnect(info.ID); err != nil {
			s.log.Warn("disconnect on close failed", slog.String("session_id", string(info.ID)), slog.String("error", err.Error()))
		}
	}
}

func loggerOrDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return logger.Discard()
	}
	return log
}
