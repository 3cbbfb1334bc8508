package production

import (
	"fmt"
	"net/url"
)

// Overlay geometry on a 1920x1080 canvas. Overlays are a lower band so they
// sit below the camera framing.
const (
	OverlayWidth   = 1920
	OverlayHeight  = 200
	OverlayOffsetY = 880
)

// DefaultLayout returns the built-in scene catalogue: one scene per match
// event, main first.
func DefaultLayout() []LayoutEntry {
	return []LayoutEntry{
		{Scene: "mainScene", Overlay: "main", Main: true},
		{Scene: "boundaryScene", Overlay: "boundary"},
		{Scene: "sixScene", Overlay: "six"},
		{Scene: "wicketScene", Overlay: "wicket"},
		{Scene: "newBowlerScene", Overlay: "new-bowler"},
		{Scene: "newBatsmanScene", Overlay: "new-batsman"},
		{Scene: "scorecardScene", Overlay: "scorecard"},
		{Scene: "playingTeamsScene", Overlay: "playing-teams"},
		{Scene: "inningsBreakScene", Overlay: "innings-break"},
		{Scene: "playingXIScene", Overlay: "playing-xi"},
	}
}

// OverlayURL returns <base>/<overlay>?matchId=<matchID>. The matchId query
// is omitted when matchID is empty.
func OverlayURL(baseURL, overlay, matchID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("overlay base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("overlay base url %q: must be absolute", baseURL)
	}
	u = u.JoinPath(overlay)
	if matchID != "" {
		q := u.Query()
		q.Set("matchId", matchID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// DefaultSceneSpecs builds the default catalogue for one match.
func DefaultSceneSpecs(baseURL, matchID string) ([]SceneSpec, error) {
	return BuildSceneSpecs(baseURL, matchID, DefaultLayout())
}

// BuildSceneSpecs turns a layout into the ordered SceneSpecs for one match.
// When no entry is marked main the first one is.
func BuildSceneSpecs(baseURL, matchID string, layout []LayoutEntry) ([]SceneSpec, error) {
	if err := validateLayout(layout); err != nil {
		return nil, err
	}

	hasMain := false
	for _, e := range layout {
		hasMain = hasMain || e.Main
	}

	specs := make([]SceneSpec, 0, len(layout))
	for i, e := range layout {
		src, err := OverlayURL(baseURL, e.Overlay, matchID)
		if err != nil {
			return nil, err
		}
		spec := SceneSpec{
			Name:      e.Scene,
			InputName: e.InputName,
			Main:      e.Main || (!hasMain && i == 0),
			InputSettings: InputSettings{
				SourceURL: src,
				Width:     OverlayWidth,
				Height:    OverlayHeight,
				PositionX: e.PositionX,
				PositionY: OverlayOffsetY,
			},
		}
		if e.Width > 0 {
			spec.InputSettings.Width = e.Width
		}
		if e.Height > 0 {
			spec.InputSettings.Height = e.Height
		}
		if e.PositionY != nil {
			spec.InputSettings.PositionY = *e.PositionY
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// SceneNames returns the scene names of specs in order, e.g. for a manual
// scene switcher.
func SceneNames(specs []SceneSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
