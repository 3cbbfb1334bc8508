package production

import (
	"context"
	"encoding/json"
	"time"

	"obs-remote/internal/obsws"
)

// SessionID uniquely identifies a live control session.
type SessionID string

// InputSettings describe the browser overlay attached to a scene.
type InputSettings struct {
	SourceURL string  `json:"sourceUrl"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

// SceneSpec describes one scene and its single overlay. Main marks the scene
// that also receives the camera and becomes the program scene.
type SceneSpec struct {
	Name          string        `json:"name"`
	InputName     string        `json:"inputName,omitempty"`
	Main          bool          `json:"main,omitempty"`
	InputSettings InputSettings `json:"inputSettings"`
}

// SourceName returns the name of the overlay input for this scene.
func (s SceneSpec) SourceName() string {
	if s.InputName != "" {
		return s.InputName
	}
	return s.Name + " Overlay"
}

// Requester issues one correlated request. *obsws.Client implements it.
type Requester interface {
	SendRequest(ctx context.Context, requestType string, params any) (json.RawMessage, error)
}

// Controller is a connectable Requester, one per session.
type Controller interface {
	Requester
	Connect(ctx context.Context, creds obsws.Credentials) error
	Disconnect() error
	State() obsws.State
}

// Session is the in-memory state of one control session.
type Session struct {
	ID         SessionID
	IP         string
	Controller Controller
	CreatedAt  time.Time
	Scenes     []string
}

// SessionInfo is a read-only snapshot of a Session.
type SessionInfo struct {
	ID        SessionID `json:"id"`
	IP        string    `json:"ip"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	Scenes    []string  `json:"scenes"`
}
