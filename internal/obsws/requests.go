package obsws

// Request types used by this client.
const (
	RequestGetSceneList           = "GetSceneList"
	RequestCreateScene            = "CreateScene"
	RequestCreateInput            = "CreateInput"
	RequestGetSceneItemID         = "GetSceneItemId"
	RequestSetSceneItemTransform  = "SetSceneItemTransform"
	RequestSetCurrentProgramScene = "SetCurrentProgramScene"
)

// Input kinds.
const (
	InputKindBrowser = "browser_source"
	// InputKindCamera is the Windows video capture device; macOS uses
	// av_capture_input_v2 and Linux v4l2_input.
	InputKindCamera = "dshow_input"
)

type CreateSceneParams struct {
	SceneName string `json:"sceneName"`
}

type CreateInputParams struct {
	SceneName        string         `json:"sceneName"`
	InputName        string         `json:"inputName"`
	InputKind        string         `json:"inputKind"`
	InputSettings    map[string]any `json:"inputSettings,omitempty"`
	SceneItemEnabled *bool          `json:"sceneItemEnabled,omitempty"`
}

type CreateInputResult struct {
	InputUUID   string `json:"inputUuid"`
	SceneItemID int    `json:"sceneItemId"`
}

type GetSceneItemIDParams struct {
	SceneName  string `json:"sceneName"`
	SourceName string `json:"sourceName"`
}

type GetSceneItemIDResult struct {
	SceneItemID int `json:"sceneItemId"`
}

// SceneItemTransform is the subset of transform fields the client sets.
type SceneItemTransform struct {
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

type SetSceneItemTransformParams struct {
	SceneName          string             `json:"sceneName"`
	SceneItemID        int                `json:"sceneItemId"`
	SceneItemTransform SceneItemTransform `json:"sceneItemTransform"`
}

type SetCurrentProgramSceneParams struct {
	SceneName string `json:"sceneName"`
}

type SceneListEntry struct {
	SceneName  string `json:"sceneName"`
	SceneIndex int    `json:"sceneIndex"`
	SceneUUID  string `json:"sceneUuid,omitempty"`
}

type GetSceneListResult struct {
	CurrentProgramSceneName string           `json:"currentProgramSceneName"`
	CurrentPreviewSceneName string           `json:"currentPreviewSceneName"`
	Scenes                  []SceneListEntry `json:"scenes"`
}
