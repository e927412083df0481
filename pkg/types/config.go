package types

import "errors"

// Config holds backend selection and parameters for attaching a link manager.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ParentRelation is the hierarchy relation whose target is recorded as
	// the source block's parent pointer. Defaults to child_of.
	ParentRelation Relation `json:"parent_relation,omitempty" yaml:"parent_relation,omitempty"`

	SQLiteConfig *SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

// SQLiteConfig controls when links.jsonl is rewritten after a mutation.
type SQLiteConfig struct {
	SyncStrategy  string `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchInterval int    `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty"` // seconds
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// JSONL sync strategies.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Sync defaults.
const (
	DefaultBatchSize     = 100
	DefaultBatchInterval = 5
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
	ErrParentRelation       = errors.New("parent relation must be a hierarchy relation")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.ParentRelation != "" {
		if cat, err := c.ParentRelation.Category(); err != nil || cat != CategoryHierarchy {
			return ErrParentRelation
		}
	}
	if c.SQLiteConfig != nil {
		return c.SQLiteConfig.Validate()
	}
	return nil
}

// GetParentRelation returns the configured parent relation or child_of.
func (c Config) GetParentRelation() Relation {
	if c.ParentRelation == "" {
		return RelChildOf
	}
	return c.ParentRelation
}

// Validate checks the sync settings. Zero values mean "use the default".
func (s *SQLiteConfig) Validate() error {
	switch s.SyncStrategy {
	case "", SyncImmediate, SyncOnClose, SyncBatch:
	default:
		return ErrSyncStrategyUnknown
	}
	if s.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if s.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}

// GetSyncStrategy returns the configured strategy or immediate. Safe on a nil
// receiver.
func (s *SQLiteConfig) GetSyncStrategy() string {
	if s == nil || s.SyncStrategy == "" {
		return SyncImmediate
	}
	return s.SyncStrategy
}

// GetBatchSize returns the configured batch size or the default.
func (s *SQLiteConfig) GetBatchSize() int {
	if s == nil || s.BatchSize == 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// GetBatchInterval returns the configured interval in seconds or the default.
func (s *SQLiteConfig) GetBatchInterval() int {
	if s == nil || s.BatchInterval == 0 {
		return DefaultBatchInterval
	}
	return s.BatchInterval
}
