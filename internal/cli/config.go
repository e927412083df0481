package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "LINKGRAPH"
)

// Config keys.
const (
	cfgKeyBackend        = "backend"
	cfgKeyDataDir        = "data_dir"
	cfgKeyLogLevel       = "log_level"
	cfgKeyLogFormat      = "log_format"
	cfgKeySyncStrategy   = "sync_strategy"
	cfgKeyBatchSize      = "batch_size"
	cfgKeyBatchInterval  = "batch_interval"
	cfgKeyParentRelation = "parent_relation"
)

// configFile is the shape of config.yaml written on first run.
type configFile struct {
	Backend        string `yaml:"backend"`
	DataDir        string `yaml:"data_dir,omitempty"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	SyncStrategy   string `yaml:"sync_strategy"`
	BatchSize      int    `yaml:"batch_size"`
	BatchInterval  int    `yaml:"batch_interval"`
	ParentRelation string `yaml:"parent_relation"`
}

func defaultConfigFile() configFile {
	return configFile{
		Backend:        types.BackendSQLite,
		LogLevel:       "warn",
		LogFormat:      "text",
		SyncStrategy:   types.SyncImmediate,
		BatchSize:      types.DefaultBatchSize,
		BatchInterval:  types.DefaultBatchInterval,
		ParentRelation: string(types.RelChildOf),
	}
}

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default file on first run. Every key can be overridden by
// a LINKGRAPH_<KEY> environment variable.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt), ""); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	def := defaultConfigFile()
	v := viper.New()
	v.SetDefault(cfgKeyBackend, def.Backend)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyLogFormat, def.LogFormat)
	v.SetDefault(cfgKeySyncStrategy, def.SyncStrategy)
	v.SetDefault(cfgKeyBatchSize, def.BatchSize)
	v.SetDefault(cfgKeyBatchInterval, def.BatchInterval)
	v.SetDefault(cfgKeyParentRelation, def.ParentRelation)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. An existing file is left alone.
func writeConfigIfMissing(path, dataDir string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile()
	cfg.DataDir = dataDir
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := "# linkgraph configuration\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

// backendConfig builds the validated backend configuration from v.
func backendConfig(v *viper.Viper, dataDir string) (types.Config, error) {
	cfg := types.Config{
		Backend:        v.GetString(cfgKeyBackend),
		DataDir:        dataDir,
		ParentRelation: types.Relation(v.GetString(cfgKeyParentRelation)),
		SQLiteConfig: &types.SQLiteConfig{
			SyncStrategy:  v.GetString(cfgKeySyncStrategy),
			BatchSize:     v.GetInt(cfgKeyBatchSize),
			BatchInterval: v.GetInt(cfgKeyBatchInterval),
		},
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// recordDataDir sets data_dir in the config file at path, keeping its other
// values.
func recordDataDir(path, dataDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg := defaultConfigFile()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	cfg.DataDir = dataDir
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := "# linkgraph configuration\n"
	return os.WriteFile(path, append([]byte(header), out...), 0o644)
}
