package classes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configs", "class_config.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	return r, path
}

func TestLoadMissingStartsEmpty(t *testing.T) {
	t.Parallel()

	r, path := newTestRegistry(t)
	assert.Equal(t, 0, r.Len())
	assert.NoFileExists(t, path)
	assert.True(t, r.Settings().AutoSort)
}

func TestIDsAreStableAcrossAppends(t *testing.T) {
	t.Parallel()

	r, path := newTestRegistry(t)
	sigma := []string{"person", "car", "bike"}
	for _, n := range sigma {
		_, err := r.AddClass(n, "")
		require.NoError(t, err)
	}
	before := r.ToMapping()
	require.NoError(t, r.Save())

	reopened, err := Load(path)
	require.NoError(t, err)
	for _, n := range []string{"truck", "bus"} {
		_, err := reopened.AddClass(n, "")
		require.NoError(t, err)
	}
	require.NoError(t, reopened.Save())

	final, err := Load(path)
	require.NoError(t, err)
	for _, n := range sigma {
		id, ok := final.IDFor(n)
		require.True(t, ok)
		assert.Equal(t, before[n], id, n)
	}
	assert.Equal(t, []string{"person", "car", "bike", "truck", "bus"}, final.Names())
	assert.Equal(t, map[int]string{0: "person", 1: "car", 2: "bike", 3: "truck", 4: "bus"}, final.IDToName())
}

func TestAddClassDuplicate(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	id, err := r.AddClass("dog", "good boy")
	require.NoError(t, err)

	again, err := r.AddClass("dog", "")
	require.ErrorIs(t, err, ErrDuplicateClass)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, r.Len())

	r.SetSettings(Settings{AllowDuplicates: true, CaseSensitive: true})
	again, err = r.AddClass("dog", "")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, r.Len(), "a name never maps to two ids")

	md, ok := r.Metadata("dog")
	require.True(t, ok)
	assert.Equal(t, "good boy", md.Description)
	assert.Equal(t, SourceManual, md.Source)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	r.SetSettings(Settings{CaseSensitive: false})
	_, err := r.AddClass("Person", "")
	require.NoError(t, err)

	id, ok := r.IDFor("person")
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestStrictValidation(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	_, err := r.AddClass("  ", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	r.SetSettings(Settings{ValidationStrict: true, CaseSensitive: true})
	_, err = r.AddClass("traffic light", "")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = r.AddClass("traffic_light", "")
	assert.NoError(t, err)
}

func TestEnsureInsertsOnMiss(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	id, err := r.Ensure("cat")
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	id, err = r.Ensure("cat")
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	md, _ := r.Metadata("cat")
	assert.Equal(t, SourceAuto, md.Source)

	name, ok := r.NameFor(0)
	assert.True(t, ok)
	assert.Equal(t, "cat", name)
	_, ok = r.NameFor(1)
	assert.False(t, ok)
}

func TestAddAllSortsColdStart(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	require.NoError(t, r.AddAll([]string{"c", "a", "b", "a"}, SourceDataset))
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	require.NoError(t, r.AddAll([]string{"d", "a"}, SourceDataset))
	assert.Equal(t, []string{"a", "b", "c", "d"}, r.Names(), "existing ids keep their place")
}

func TestSaveWritesDocumentedLayout(t *testing.T) {
	t.Parallel()

	r, path := newTestRegistry(t)
	_, err := r.AddClass("person", "humans")
	require.NoError(t, err)
	r.IncrementUsage("person", 3)
	require.True(t, r.Dirty())
	require.NoError(t, r.Save())
	assert.False(t, r.Dirty())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	for _, key := range []string{"version", "created_at", "description", "classes", "class_metadata", "settings"} {
		assert.Contains(t, doc, key)
	}
	md := doc["class_metadata"].(map[string]any)["person"].(map[string]any)
	assert.Equal(t, 3, md["usage_count"])
	assert.Equal(t, "humans", md["description"])
	settings := doc["settings"].(map[string]any)
	assert.Contains(t, settings, "allow_duplicates")
}

func TestReset(t *testing.T) {
	t.Parallel()

	r, path := newTestRegistry(t)
	_, err := r.AddClass("a", "")
	require.NoError(t, err)
	require.NoError(t, r.Reset())
	assert.Equal(t, 0, r.Len())

	reopened, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "class_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes: [a, b\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
