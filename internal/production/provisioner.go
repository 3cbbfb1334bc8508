package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"obs-remote/internal/obsws"
)

var (
	// ErrNoScenes is returned when provisioning is asked to create nothing.
	ErrNoScenes = errors.New("no scenes to provision")

	// ErrNoCameraSource is returned when no camera input name was given.
	ErrNoCameraSource = errors.New("camera source name is required")
)

// Provisioner brings a remote to the desired set of scenes, overlays and
// camera. Re-running it against an already provisioned remote succeeds.
type Provisioner struct {
	req        Requester
	switcher   *Switcher
	log        *slog.Logger
	cameraKind string
}

// NewProvisioner returns a Provisioner. An empty cameraKind selects
// obsws.InputKindCamera.
func NewProvisioner(req Requester, log *slog.Logger, cameraKind string) *Provisioner {
	if cameraKind == "" {
		cameraKind = obsws.InputKindCamera
	}
	log = loggerOrDiscard(log)
	return &Provisioner{
		req:        req,
		switcher:   NewSwitcher(req, log),
		log:        log,
		cameraKind: cameraKind,
	}
}

// StepError reports the provisioning step that failed. Steps before it
// completed and are left in place.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Provision creates every scene, attaches and positions its overlay, adds the
// camera to the main scene and makes it the program scene. Steps run one at a
// time; the first failure other than "already exists" aborts the rest and is
// returned as a *StepError. Nothing is rolled back. On success the refreshed
// scene list is returned.
func (p *Provisioner) Provision(ctx context.Context, specs []SceneSpec, mainCameraSourceName string) ([]string, error) {
	if len(specs) == 0 {
		return nil, ErrNoScenes
	}
	if mainCameraSourceName == "" {
		return nil, ErrNoCameraSource
	}

	var inventory []string
	steps := p.plan(specs, mainScene(specs), mainCameraSourceName, &inventory)

	for i, s := range steps {
		if err := s.run(ctx); err != nil {
			p.log.Warn("provisioning aborted",
				slog.String("step", s.name),
				slog.Int("completed", i),
				slog.Int("total", len(steps)),
				slog.String("error", err.Error()))
			return nil, &StepError{Step: s.name, Err: err}
		}
		p.log.Debug("provisioning step done", slog.String("step", s.name))
	}

	p.log.Info("provisioning complete", slog.Int("scenes", len(specs)), slog.Int("inventory", len(inventory)))
	return inventory, nil
}

func (p *Provisioner) plan(specs []SceneSpec, main SceneSpec, camera string, inventory *[]string) []step {
	steps := make([]step, 0, 2*len(specs)+3)

	for _, spec := range specs {
		spec := spec
		steps = append(steps, step{
			name: "create scene " + spec.Name,
			run: func(ctx context.Context) error {
				return p.create(ctx, obsws.RequestCreateScene, obsws.CreateSceneParams{SceneName: spec.Name})
			},
		})
	}

	for _, spec := range specs {
		spec := spec
		steps = append(steps, step{
			name: "attach overlay " + spec.SourceName(),
			run: func(ctx context.Context) error {
				return p.attachOverlay(ctx, spec)
			},
		})
	}

	steps = append(steps,
		step{
			name: "attach camera " + camera,
			run: func(ctx context.Context) error {
				return p.create(ctx, obsws.RequestCreateInput, obsws.CreateInputParams{
					SceneName:        main.Name,
					InputName:        camera,
					InputKind:        p.cameraKind,
					SceneItemEnabled: enabled(),
				})
			},
		},
		step{
			name: "activate scene " + main.Name,
			run: func(ctx context.Context) error {
				return p.switcher.ActivateScene(ctx, main.Name)
			},
		},
		step{
			name: "refresh scene list",
			run: func(ctx context.Context) error {
				names, err := p.switcher.ListScenes(ctx)
				*inventory = names
				return err
			},
		},
	)
	return steps
}

// attachOverlay creates the browser input on its scene, looks up the scene
// item and moves it into place.
func (p *Provisioner) attachOverlay(ctx context.Context, spec SceneSpec) error {
	settings := spec.InputSettings
	err := p.create(ctx, obsws.RequestCreateInput, obsws.CreateInputParams{
		SceneName: spec.Name,
		InputName: spec.SourceName(),
		InputKind: obsws.InputKindBrowser,
		InputSettings: map[string]any{
			"url":    settings.SourceURL,
			"width":  settings.Width,
			"height": settings.Height,
		},
		SceneItemEnabled: enabled(),
	})
	if err != nil {
		return err
	}

	data, err := p.req.SendRequest(ctx, obsws.RequestGetSceneItemID, obsws.GetSceneItemIDParams{
		SceneName:  spec.Name,
		SourceName: spec.SourceName(),
	})
	if err != nil {
		return err
	}
	var item obsws.GetSceneItemIDResult
	if err := json.Unmarshal(data, &item); err != nil {
		return fmt.Errorf("decode scene item id: %w", err)
	}

	_, err = p.req.SendRequest(ctx, obsws.RequestSetSceneItemTransform, obsws.SetSceneItemTransformParams{
		SceneName:   spec.Name,
		SceneItemID: item.SceneItemID,
		SceneItemTransform: obsws.SceneItemTransform{
			PositionX: settings.PositionX,
			PositionY: settings.PositionY,
		},
	})
	return err
}

// create issues a creation request, treating "already exists" as success.
func (p *Provisioner) create(ctx context.Context, requestType string, params any) error {
	_, err := p.req.SendRequest(ctx, requestType, params)
	if obsws.IsAlreadyExists(err) {
		p.log.Debug("already exists", slog.String("request_type", requestType), slog.String("detail", err.Error()))
		return nil
	}
	return err
}

func mainScene(specs []SceneSpec) SceneSpec {
	for _, s := range specs {
		if s.Main {
			return s
		}
	}
	return specs[0]
}

func enabled() *bool {
	v := true
	return &v
}
