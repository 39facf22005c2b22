// Package conf provides configuration management for boxlabel.
package conf

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Annotation format names accepted by annotation.format
const (
	FormatVOC      = "voc"
	FormatYOLO     = "yolo"
	FormatCreateML = "createml"
)

// Predictor device names accepted by predictor.device
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
)

// Settings contains all configuration options for boxlabel.
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string      `yaml:"name"`
		Log  LogSettings `yaml:"log"`
	} `yaml:"main"`

	Project    ProjectSettings    `yaml:"project"`
	Annotation AnnotationSettings `yaml:"annotation"`
	Dataset    DatasetSettings    `yaml:"dataset"`
	Predictor  PredictorSettings  `yaml:"predictor"`
	Batch      BatchSettings      `yaml:"batch"`
	Telemetry  TelemetrySettings  `yaml:"telemetry"`
	Metrics    MetricsSettings    `yaml:"metrics"`
}

// LogSettings controls console and file logging.
type LogSettings struct {
	Level    string `yaml:"level"`    // trace, debug, info, warn, error
	File     string `yaml:"file"`     // optional JSON log file
	Timezone string `yaml:"timezone"` // Local, UTC or IANA name
}

// ProjectSettings locates the project-scoped config files.
type ProjectSettings struct {
	Root      string `yaml:"root"`      // project root, defaults to the working directory
	ConfigDir string `yaml:"configdir"` // relative to Root unless absolute
}

// AnnotationSettings controls how per-image annotation files are written.
type AnnotationSettings struct {
	Format            string `yaml:"format"`            // voc, yolo or createml
	SaveDir           string `yaml:"savedir"`           // empty means next to the image
	AutoInsertClasses bool   `yaml:"autoinsertclasses"` // unknown classes are appended to the registry
}

// DatasetSettings are the defaults for the dataset builder.
type DatasetSettings struct {
	TrainRatio     float64 `yaml:"trainratio"`
	Seed           int64   `yaml:"seed"`
	Clean          bool    `yaml:"clean"`
	Backup         bool    `yaml:"backup"`
	ExcludeTrained bool    `yaml:"excludetrained"`
	UseRegistry    bool    `yaml:"useregistry"`
}

// PredictorSettings configure model loading and result filtering.
type PredictorSettings struct {
	ModelPath  string             `yaml:"modelpath"`
	LabelPath  string             `yaml:"labelpath"` // optional, one class name per line
	Device     string             `yaml:"device"`    // auto or cpu
	Threads    int                `yaml:"threads"`   // 0 selects from CPU topology
	Conf       float64            `yaml:"conf"`
	IOU        float64            `yaml:"iou"`
	MaxDet     int                `yaml:"maxdet"`
	MinBoxSize float64            `yaml:"minboxsize"`
	MaxOverlap float64            `yaml:"maxoverlap"`
	PerClass   map[string]float64 `yaml:"perclass"`
}

// BatchSettings configure directory batch prediction.
type BatchSettings struct {
	Recursive bool `yaml:"recursive"`
}

// TelemetrySettings configure optional error reporting.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsSettings configure the Prometheus textfile export.
type MetricsSettings struct {
	File string `yaml:"file"` // empty disables the export
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables using the
// global viper instance and the OS specific config paths.
func Load() (*Settings, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("error getting default config paths: %w", err)
	}

	settings, err := LoadFrom(viper.GetViper(), configPaths)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// LoadFrom reads config.yaml from the first of configPaths that has one. When
// none does, the embedded default is written to configPaths[0].
func LoadFrom(v *viper.Viper, configPaths []string) (*Settings, error) {
	if err := initViper(v, configPaths); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func initViper(v *viper.Viper, configPaths []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("BOXLABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultConfig(v)

	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths)
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("Configuration loaded", logger.String("file", v.ConfigFileUsed()))
	return nil
}

// createDefaultConfig writes the embedded default config to the first config path
func createDefaultConfig(v *viper.Viper, configPaths []string) error {
	if len(configPaths) == 0 {
		return errors.Newf("no config paths available").
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(configPath, defaultConfig, 0o644); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "write_default_config").
			Build()
	}

	GetLogger().Info("Created default config file", logger.String("path", configPath))
	return v.ReadConfig(bytes.NewReader(defaultConfig))
}

// getDefaultConfig reads the embedded config.yaml.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the settings loaded by Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically. Comments in the
// existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	return fsutil.AtomicWriteFile(configPath, 0o644, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("error marshaling settings to YAML: %w", err)
		}
		return enc.Close()
	})
}

// ConfigDir returns the directory holding the project-scoped files
// (class registry, training history, training preferences).
func (s *Settings) ConfigDir() string {
	if filepath.IsAbs(s.Project.ConfigDir) {
		return s.Project.ConfigDir
	}
	root := s.Project.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, s.Project.ConfigDir)
}

// ClassRegistryPath returns the path of class_config.yaml.
func (s *Settings) ClassRegistryPath() string {
	return filepath.Join(s.ConfigDir(), "class_config.yaml")
}

// TrainingHistoryPath returns the path of training_history.json.
func (s *Settings) TrainingHistoryPath() string {
	return filepath.Join(s.ConfigDir(), "training_history.json")
}

// TrainingPreferencesPath returns the path of training_preferences.json.
func (s *Settings) TrainingPreferencesPath() string {
	return filepath.Join(s.ConfigDir(), "training_preferences.json")
}

// UserDataDir returns the per-user application directory holding the
// predefined labels and the editor settings.
func UserDataDir() (string, error) {
	if dir := os.Getenv("BOXLABEL_USERDIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get_user_config_dir").
			Build()
	}
	return filepath.Join(base, appDirName), nil
}

// Sync re-reads the global viper state into settings so command line flags
// bound after Load take precedence, then validates the result.
func Sync(settings *Settings) error {
	if err := viper.Unmarshal(settings); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "sync_flags").
			Build()
	}
	return ValidateSettings(settings)
}
