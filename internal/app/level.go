package app

import (
	"fmt"

	"github.com/annel0/mmo-level/internal/config"
	"github.com/annel0/mmo-level/internal/level"
)

// BuildLevel создает уровень по конфигурации.
// Без списка измерений создаются стандартные overworld/nether/the_end.
func BuildLevel(cfg config.LevelConfig) (*level.Level, error) {
	name := cfg.Name
	if name == "" {
		name = "world"
	}

	var lvl *level.Level
	if len(cfg.Dimensions) == 0 {
		lvl = level.DefaultLevel(name)
	} else {
		lvl = level.NewLevel(name)
		for _, dc := range cfg.Dimensions {
			kind, err := level.ParseDimensionType(dc.Type)
			if err != nil {
				return nil, fmt.Errorf("измерение %q: %w", dc.Name, err)
			}

			bounds := level.DefaultBounds(kind)
			if dc.MinY != nil {
				bounds.MinY = *dc.MinY
			}
			if dc.Height > 0 {
				bounds.Height = dc.Height
			}

			if _, err := lvl.CreateDimensionWithBounds(dc.Name, kind, bounds); err != nil {
				return nil, err
			}
		}
	}

	if err := applySpawn(lvl, cfg.Spawn); err != nil {
		return nil, err
	}
	return lvl, nil
}

// applySpawn ставит точку появления. Без явного измерения берётся первое по имени,
// если у уровня ещё нет точки появления.
func applySpawn(lvl *level.Level, sc config.SpawnConfig) error {
	if sc.Dimension == "" {
		if lvl.Spawn().HasDimension() {
			return nil
		}
		dims := lvl.Dimensions()
		if len(dims) == 0 {
			return nil
		}
		return lvl.SetSpawn(level.NewPosition(dims[0], sc.X, sc.Y, sc.Z))
	}

	dim := lvl.Dimension(sc.Dimension)
	if dim == nil {
		return fmt.Errorf("точка появления: %w: %q", level.ErrDimensionNotFound, sc.Dimension)
	}
	return lvl.SetSpawn(level.NewPosition(dim, sc.X, sc.Y, sc.Z))
}
