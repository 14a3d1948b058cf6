package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// labelsFile is the YAML layout of the resource labels file:
//
//	resources:
//	  course: Cursos
//	  training_plan: Planes de Formación
type labelsFile struct {
	Resources map[string]string `yaml:"resources"`
}

// LoadLabels reads resource type labels from a YAML file.
func LoadLabels(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}

	var f labelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}
	if f.Resources == nil {
		f.Resources = map[string]string{}
	}
	return f.Resources, nil
}

// WatchLabels calls onChange with the new labels every time the file at path is written or
// replaced, until ctx is done. A file that fails to parse is logged and skipped. ready, if
// not nil, is closed once the watch is in place.
func WatchLabels(ctx context.Context, path string, onChange func(map[string]string), logger *observability.Logger, ready chan<- struct{}) error {
	logger = observability.OrNop(logger).Component("labels").WithField("path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid labels path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			labels, err := LoadLabels(abs)
			if err != nil {
				logger.WithError(err).Warn("keeping previous labels")
				continue
			}
			logger.WithField("count", len(labels)).Info("labels reloaded")
			onChange(labels)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watcher error")
		}
	}
}
