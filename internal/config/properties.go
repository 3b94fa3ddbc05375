package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"villaops/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// LoadProperties reads the property catalog file.
func LoadProperties(path string) ([]models.Property, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}

	var catalog struct {
		Properties []models.Property `yaml:"properties"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse properties: %w", err)
	}
	if err := ValidateProperties(catalog.Properties); err != nil {
		return nil, err
	}

	return catalog.Properties, nil
}

// WatchProperties reloads the catalog whenever the file is written and hands
// the result to onChange. Invalid files are logged and ignored. Blocks until
// ctx is done.
func WatchProperties(ctx context.Context, path string, logger *zerolog.Logger, onChange func([]models.Property)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case <-debounce:
			debounce = nil
			properties, err := LoadProperties(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("property catalog reload failed")
				continue
			}
			logger.Info().Int("count", len(properties)).Msg("property catalog reloaded")
			onChange(properties)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("property catalog watcher error")
		}
	}
}
