package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"obs-remote/internal/obsws"
)

// ErrEmptySceneName is returned when a scene is activated without a name.
var ErrEmptySceneName = errors.New("scene name is required")

// Switcher lists scenes and switches the program scene.
type Switcher struct {
	req Requester
	log *slog.Logger
}

// NewSwitcher returns a Switcher issuing requests through req.
func NewSwitcher(req Requester, log *slog.Logger) *Switcher {
	return &Switcher{req: req, log: loggerOrDiscard(log)}
}

// ListScenes returns the scene names in the order the remote reports them.
func (s *Switcher) ListScenes(ctx context.Context) ([]string, error) {
	data, err := s.req.SendRequest(ctx, obsws.RequestGetSceneList, nil)
	if err != nil {
		return nil, err
	}

	var list obsws.GetSceneListResult
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode scene list: %w", err)
		}
	}

	names := make([]string, 0, len(list.Scenes))
	for _, sc := range list.Scenes {
		names = append(names, sc.SceneName)
	}
	return names, nil
}

// ActivateScene makes name the current program scene. Unknown scenes are
// reported by the remote as a *obsws.RemoteRejectionError.
func (s *Switcher) ActivateScene(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptySceneName
	}
	_, err := s.req.SendRequest(ctx, obsws.RequestSetCurrentProgramScene, obsws.SetCurrentProgramSceneParams{SceneName: name})
	if err != nil {
		return err
	}
	s.log.Info("program scene changed", slog.String("scene", name))
	return nil
}
