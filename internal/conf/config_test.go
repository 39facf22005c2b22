package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/boxlabel/internal/errors"
)

func TestLoadFromWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	settings, err := LoadFrom(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.Equal(t, FormatVOC, settings.Annotation.Format)
	assert.InDelta(t, 0.8, settings.Dataset.TrainRatio, 1e-9)
	assert.Equal(t, int64(42), settings.Dataset.Seed)
	assert.Equal(t, DeviceAuto, settings.Predictor.Device)
	assert.Equal(t, 300, settings.Predictor.MaxDet)
	assert.Equal(t, "configs", settings.Project.ConfigDir)
}

func TestLoadFromReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
annotation:
  format: YOLO
  savedir: /data/labels
dataset:
  trainratio: 0.7
predictor:
  perclass:
    person: 0.6
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	settings, err := LoadFrom(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, FormatYOLO, settings.Annotation.Format, "format is normalized to lower case")
	assert.Equal(t, "/data/labels", settings.Annotation.SaveDir)
	assert.InDelta(t, 0.7, settings.Dataset.TrainRatio, 1e-9)
	assert.InDelta(t, 0.6, settings.Predictor.PerClass["person"], 1e-9)
	assert.InDelta(t, 0.25, settings.Predictor.Conf, 1e-9, "unset keys fall back to defaults")
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("BOXLABEL_PREDICTOR_DEVICE", "cpu")

	settings, err := LoadFrom(viper.New(), []string{t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DeviceCPU, settings.Predictor.Device)
}

func TestValidateSettingsCollectsErrors(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.Annotation.Format = "coco"
	s.Dataset.TrainRatio = 1.0
	s.Predictor.Device = "tpu"
	s.Predictor.Conf = 1.5
	s.Predictor.MaxDet = 0

	err := ValidateSettings(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 5)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	settings, err := LoadFrom(viper.New(), []string{dir})
	require.NoError(t, err)

	settings.Annotation.Format = FormatCreateML
	settings.Predictor.IOU = 0.6
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := LoadFrom(viper.New(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, FormatCreateML, reloaded.Annotation.Format)
	assert.InDelta(t, 0.6, reloaded.Predictor.IOU, 1e-9)
}

func TestProjectPaths(t *testing.T) {
	t.Parallel()

	s := &Settings{Project: ProjectSettings{Root: "/work/proj", ConfigDir: "configs"}}
	assert.Equal(t, filepath.Join("/work/proj", "configs", "class_config.yaml"), s.ClassRegistryPath())
	assert.Equal(t, filepath.Join("/work/proj", "configs", "training_history.json"), s.TrainingHistoryPath())
	assert.Equal(t, filepath.Join("/work/proj", "configs", "training_preferences.json"), s.TrainingPreferencesPath())

	s.Project.ConfigDir = "/abs/cfg"
	assert.Equal(t, "/abs/cfg", s.ConfigDir())
}

func TestDefaultConfigKeysAreAllUsed(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var settings Settings
	require.NoError(t, dec.Decode(&settings), "every key in the default config maps to a settings field")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	fileKeys := make(map[string]bool)
	flattenKeys("", doc, fileKeys)

	v := viper.New()
	setDefaultConfig(v)
	for _, key := range v.AllKeys() {
		assert.True(t, fileKeys[key], "default %q is missing from the default config file", key)
	}
}

func flattenKeys(prefix string, m map[string]any, out map[string]bool) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			flattenKeys(key, sub, out)
			continue
		}
		out[key] = true
	}
}
