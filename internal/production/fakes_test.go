package production

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"obs-remote/internal/obsws"
)

// call is one request seen by fakeRemote.
type call struct {
	Type   string
	Params any
}

// fakeRemote is an in-memory stand-in for the remote: it keeps scenes,
// inputs and the program scene, and rejects duplicates the way the real
// remote does.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []call
	scenes  []string
	inputs  map[string]string // input name -> scene
	items   map[string]int    // scene/source -> scene item id
	program string
	nextID  int

	// failOn maps a request type to an error returned instead of executing it.
	failOn map[string]error
	// listOverride, when set, is returned by GetSceneList.
	listOverride []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		inputs: make(map[string]string),
		items:  make(map[string]int),
		failOn: make(map[string]error),
	}
}

func (f *fakeRemote) SendRequest(_ context.Context, requestType string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{Type: requestType, Params: params})
	if err, ok := f.failOn[requestType]; ok {
		return nil, err
	}

	switch p := params.(type) {
	case obsws.CreateSceneParams:
		for _, s := range f.scenes {
			if s == p.SceneName {
				return nil, f.exists(requestType, "scene", p.SceneName)
			}
		}
		f.scenes = append(f.scenes, p.SceneName)
		return json.RawMessage(`{}`), nil

	case obsws.CreateInputParams:
		if !f.hasScene(p.SceneName) {
			return nil, &obsws.RemoteRejectionError{RequestType: requestType, Code: 600, Comment: "No source was found by the name of `" + p.SceneName + "`."}
		}
		if _, ok := f.inputs[p.InputName]; ok {
			return nil, f.exists(requestType, "input", p.InputName)
		}
		f.inputs[p.InputName] = p.SceneName
		f.nextID++
		f.items[p.SceneName+"/"+p.InputName] = f.nextID
		return json.Marshal(obsws.CreateInputResult{InputUUID: fmt.Sprintf("uuid-%d", f.nextID), SceneItemID: f.nextID})

	case obsws.GetSceneItemIDParams:
		id, ok := f.items[p.SceneName+"/"+p.SourceName]
		if !ok {
			return nil, &obsws.RemoteRejectionError{RequestType: requestType, Code: 600, Comment: "No scene items were found"}
		}
		return json.Marshal(obsws.GetSceneItemIDResult{SceneItemID: id})

	case obsws.SetSceneItemTransformParams:
		return json.RawMessage(`{}`), nil

	case obsws.SetCurrentProgramSceneParams:
		if !f.hasScene(p.SceneName) {
			return nil, &obsws.RemoteRejectionError{RequestType: requestType, Code: 600, Comment: "No source was found by the name of `" + p.SceneName + "`."}
		}
		f.program = p.SceneName
		return nil, nil
	}

	if requestType == obsws.RequestGetSceneList {
		names := f.scenes
		if f.listOverride != nil {
			names = f.listOverride
		}
		list := obsws.GetSceneListResult{CurrentProgramSceneName: f.program}
		for i, n := range names {
			list.Scenes = append(list.Scenes, obsws.SceneListEntry{SceneName: n, SceneIndex: len(names) - 1 - i})
		}
		return json.Marshal(list)
	}
	return nil, fmt.Errorf("fakeRemote: unexpected request %s", requestType)
}

func (f *fakeRemote) exists(requestType, kind, name string) error {
	return &obsws.RemoteRejectionError{
		RequestType: requestType,
		Code:        obsws.StatusResourceAlreadyExists,
		Comment:     fmt.Sprintf("A %s already exists by that %s name.", kind, name),
	}
}

func (f *fakeRemote) hasScene(name string) bool {
	for _, s := range f.scenes {
		if s == name {
			return true
		}
	}
	return false
}

func (f *fakeRemote) requestTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Type
	}
	return out
}

func (f *fakeRemote) callsOf(requestType string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Type == requestType {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// fakeController is a Controller over a fakeRemote.
type fakeController struct {
	*fakeRemote

	mu          sync.Mutex
	state       obsws.State
	connectErr  error
	creds       obsws.Credentials
	disconnects int
}

func newFakeController() *fakeController {
	return &fakeController{fakeRemote: newFakeRemote()}
}

func (c *fakeController) Connect(_ context.Context, creds obsws.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	if c.connectErr != nil {
		c.state = obsws.StateError
		return c.connectErr
	}
	c.state = obsws.StateIdentified
	return nil
}

func (c *fakeController) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.state = obsws.StateDisconnected
	return nil
}

func (c *fakeController) State() obsws.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) SendRequest(ctx context.Context, requestType string, params any) (json.RawMessage, error) {
	if c.State() != obsws.StateIdentified {
		return nil, obsws.ErrNotConnected
	}
	return c.fakeRemote.SendRequest(ctx, requestType, params)
}
