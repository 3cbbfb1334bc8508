package production

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LayoutEntry places one overlay. Overlay is the path of the overlay page
// relative to the overlay base URL. Zero sizes and a nil PositionY select
// the defaults.
type LayoutEntry struct {
	Scene     string   `yaml:"scene"`
	Overlay   string   `yaml:"overlay"`
	InputName string   `yaml:"input_name,omitempty"`
	Main      bool     `yaml:"main,omitempty"`
	Width     int      `yaml:"width,omitempty"`
	Height    int      `yaml:"height,omitempty"`
	PositionX float64  `yaml:"position_x,omitempty"`
	PositionY *float64 `yaml:"position_y,omitempty"`
}

type layoutFile struct {
	Scenes []LayoutEntry `yaml:"scenes"`
}

// ErrEmptyLayout is returned for a layout without scenes.
var ErrEmptyLayout = errors.New("layout has no scenes")

// LoadLayout reads a YAML scene layout from path.
func LoadLayout(path string) ([]LayoutEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	layout, err := ParseLayout(data)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return layout, nil
}

// ParseLayout decodes and validates a YAML scene layout:
//
//	scenes:
//	  - scene: mainScene
//	    overlay: main
//	    main: true
//	  - scene: wicketScene
//	    overlay: wicket
//	    position_y: 760
func ParseLayout(data []byte) ([]LayoutEntry, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := validateLayout(f.Scenes); err != nil {
		return nil, err
	}
	return f.Scenes, nil
}

func validateLayout(entries []LayoutEntry) error {
	if len(entries) == 0 {
		return ErrEmptyLayout
	}
	seen := make(map[string]bool, len(entries))
	mains := 0
	for i, e := range entries {
		if e.Scene == "" {
			return fmt.Errorf("scene %d: missing name", i)
		}
		if e.Overlay == "" {
			return fmt.Errorf("scene %q: missing overlay", e.Scene)
		}
		if seen[e.Scene] {
			return fmt.Errorf("scene %q: duplicate", e.Scene)
		}
		if e.Width < 0 || e.Height < 0 {
			return fmt.Errorf("scene %q: negative size", e.Scene)
		}
		seen[e.Scene] = true
		if e.Main {
			mains++
		}
	}
	if mains > 1 {
		return fmt.Errorf("%d scenes marked main", mains)
	}
	return nil
}
