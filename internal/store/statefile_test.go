package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestLoadAbsentFile(t *testing.T) {
	f := NewStateFile(t.TempDir(), "missing.json")

	var v sample
	found, err := f.Load(&v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, sample{}, v, "destination untouched")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := NewStateFile(t.TempDir(), "state.json")

	want := sample{Name: "moltbot", Count: 42}
	require.NoError(t, f.Save(&want))

	var got sample
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	f := NewStateFile(dir, "state.json")

	require.NoError(t, f.Save(&sample{Name: "x"}))
	assert.FileExists(t, f.Path())
}

func TestLoadCorruptFile(t *testing.T) {
	f := NewStateFile(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(f.Path(), []byte("{broken"), 0644))

	var v sample
	_, err := f.Load(&v)
	assert.Error(t, err)
}
