package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	writeFile(t, path, "resources:\n  course: Formaciones\n  training_plan: Planes de Formación\n")

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"course": "Formaciones", "training_plan": "Planes de Formación"}, labels)

	writeFile(t, path, "other: true\n")
	labels, err = LoadLabels(path)
	require.NoError(t, err)
	assert.Empty(t, labels)

	writeFile(t, path, "resources: [unclosed\n")
	_, err = LoadLabels(path)
	assert.Error(t, err)

	_, err = LoadLabels(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	writeFile(t, path, "resources:\n  course: Cursos\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan map[string]string, 8)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- WatchLabels(ctx, path, func(l map[string]string) { changes <- l }, nil, ready)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}

	writeFile(t, filepath.Join(dir, "unrelated.yaml"), "resources:\n  x: y\n")
	writeFile(t, path, "resources:\n  course: Capacitaciones\n")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case labels := <-changes:
			if labels["course"] == "Capacitaciones" {
				assert.NotContains(t, labels, "x")
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("label change was not observed")
		}
	}
}
