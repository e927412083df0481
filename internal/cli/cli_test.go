package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// env is one isolated pair of config and data directories.
type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	return env{
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

// run executes one linkgraph invocation and returns its stdout and stderr.
func (e env) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, "", args...)
	require.NoError(t, err, "linkgraph %s\nstderr: %s", strings.Join(args, " "), stderr)
	return out
}

func TestInit_CreatesConfigAndData(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "init")
	assert.Contains(t, out, "initialized")

	assert.FileExists(t, filepath.Join(e.configDir, "config.yaml"))
	assert.FileExists(t, filepath.Join(e.dataDir, "links.jsonl"))

	data, err := os.ReadFile(filepath.Join(e.configDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "data_dir: "+e.dataDir)
	assert.Contains(t, string(data), "parent_relation: child_of")
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "version")
	assert.Contains(t, out, "linkgraph v")
	assert.Contains(t, out, modulePath)
}

func TestLinkAddAndList(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "link", "add", "build", "blocks", "release", "--priority", "2", "--meta", "source=ci", "--by", "alice")
	assert.Contains(t, out, "created")

	e.mustRun(t, "link", "add", "test", "blocks", "release", "--priority", "5")

	out = e.mustRun(t, "--json", "links", "release", "--direction", "inbound")
	var page types.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Links, 2)
	assert.Equal(t, "test", page.Links[0].FromID, "higher priority first")
	assert.Equal(t, "build", page.Links[1].FromID)
	assert.Equal(t, "ci", page.Links[1].Metadata["source"])
	assert.Equal(t, "alice", page.Links[1].CreatedBy)

	out = e.mustRun(t, "links", "build")
	assert.Contains(t, out, "FROM")
	assert.Contains(t, out, "release")
}

func TestLinkAdd_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"unknown relation", []string{"link", "add", "a", "likes", "b"}, types.ErrUnknownRelation},
		{"self loop", []string{"link", "add", "a", "blocks", "a"}, types.ErrSelfLoop},
		{"negative priority", []string{"link", "add", "a", "blocks", "b", "--priority", "-1"}, types.ErrInvalidPriority},
		{"bad metadata", []string{"link", "add", "a", "blocks", "b", "--meta", "novalue"}, types.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, _, err := e.run(t, "", tt.args...)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, exitUserError, exitCode(err))
		})
	}
}

func TestLinkAdd_DuplicateAndCycle(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "link", "add", "a", "blocks", "b")
	e.mustRun(t, "link", "add", "b", "blocks", "c")

	_, _, err := e.run(t, "", "link", "add", "a", "blocks", "b")
	require.ErrorIs(t, err, types.ErrDuplicateLink)

	_, _, err = e.run(t, "", "link", "add", "c", "blocks", "a")
	require.ErrorIs(t, err, types.ErrCycleDetected)
	assert.Equal(t, exitUserError, exitCode(err))

	// related_to is not acyclic.
	e.mustRun(t, "link", "add", "c", "related_to", "a")
}

func TestLinkRm(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "link", "add", "a", "blocks", "b")

	out := e.mustRun(t, "link", "rm", "a", "blocks", "b")
	assert.Contains(t, out, "removed")

	out = e.mustRun(t, "link", "rm", "a", "blocks", "b")
	assert.Contains(t, out, "no link")

	out = e.mustRun(t, "--json", "links", "a")
	var page types.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Empty(t, page.Links)
}

func TestReadyTopoCycle(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "link", "add", "design", "blocks", "build")
	e.mustRun(t, "link", "add", "build", "blocks", "ship")

	out := e.mustRun(t, "ready")
	assert.Equal(t, "design\n", out)

	out = e.mustRun(t, "topo", "blocks", "ship", "build", "design")
	assert.Equal(t, "design\nbuild\nship\n", out)

	out = e.mustRun(t, "--json", "cycle", "design")
	assert.JSONEq(t, `{"cycle": false}`, out)

	_, _, err := e.run(t, "", "topo", "nope", "a")
	require.ErrorIs(t, err, types.ErrUnknownRelation)
}

func TestPurge(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "link", "add", "a", "blocks", "b")
	e.mustRun(t, "link", "add", "c", "related_to", "b")
	e.mustRun(t, "link", "add", "c", "blocks", "d")

	out := e.mustRun(t, "purge", "b")
	assert.Equal(t, "removed 2 links\n", out)

	out = e.mustRun(t, "--json", "links", "c", "--direction", "both")
	var page types.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Links, 1)
	assert.Equal(t, "d", page.Links[0].ToID)
}

func TestExportImport(t *testing.T) {
	src := newEnv(t)
	src.mustRun(t, "link", "add", "task-1", "child_of", "epic", "--priority", "3")
	src.mustRun(t, "link", "add", "task-2", "child_of", "epic")
	src.mustRun(t, "link", "add", "task-1", "blocks", "task-2")

	exportPath := filepath.Join(t.TempDir(), "links.jsonl")
	src.mustRun(t, "export", exportPath)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	dst := newEnv(t)
	out := dst.mustRun(t, "import", exportPath)
	assert.Equal(t, "created 3, updated 0, failed 0\n", out)

	out = dst.mustRun(t, "import", exportPath)
	assert.Equal(t, "created 0, updated 3, failed 0\n", out)

	out = dst.mustRun(t, "parent", "task-1")
	assert.Equal(t, "epic\n", out)
	out = dst.mustRun(t, "parent", "epic", "--children")
	assert.Equal(t, "task-1\ntask-2\n", out)
}

func TestImport_PartialFailure(t *testing.T) {
	e := newEnv(t)
	input := strings.Join([]string{
		`{"from_id":"a","to_id":"b","relation":"blocks"}`,
		`not json`,
		`{"from_id":"b","to_id":"a","relation":"blocks"}`,
		``,
		`{"from_id":"x","to_id":"y","relation":"related_to","priority":1}`,
	}, "\n")

	out, stderr, err := e.run(t, input, "import", "-")
	require.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "2 of 4 records rejected")
	assert.Equal(t, "created 2, updated 0, failed 2\n", out)
	assert.Contains(t, stderr, "line 2:")
	assert.Contains(t, stderr, "line 3:")
}

func TestParent_MemoryBackend(t *testing.T) {
	e := newEnv(t)
	t.Setenv("LINKGRAPH_BACKEND", types.BackendMemory)

	_, _, err := e.run(t, "", "parent", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestRelations(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "relations")
	assert.Contains(t, out, "child_of")
	assert.Contains(t, out, "(symmetric)")

	out = e.mustRun(t, "--json", "relations")
	var infos []relationInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, len(types.AllRelations()))
	for _, info := range infos {
		if info.Name == types.RelBlocks {
			assert.Equal(t, types.RelIsBlockedBy, info.Inverse)
			assert.True(t, info.Acyclic)
		}
	}
}

func TestAttachFailureIsSystemError(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(e.dataDir), 0o755))
	require.NoError(t, os.WriteFile(e.dataDir, []byte("not a directory"), 0o644))

	_, _, err := e.run(t, "", "links", "a")
	require.Error(t, err)
	assert.Equal(t, exitSysError, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCode(nil))
	assert.Equal(t, exitUserError, exitCode(types.ErrCycleDetected))
	assert.Equal(t, exitSysError, exitCode(systemError("disk: %w", errors.New("full"))))
	assert.Equal(t, exitSysError, exitCode(fmt.Errorf("wrapped: %w", classify(errors.New("io")))))
	assert.Equal(t, exitUserError, exitCode(classify(fmt.Errorf("x: %w", types.ErrInvalidID))))
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	v, err := loadConfig(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.Equal(t, types.BackendSQLite, v.GetString(cfgKeyBackend))
	assert.Equal(t, types.SyncImmediate, v.GetString(cfgKeySyncStrategy))
	assert.Equal(t, types.DefaultBatchSize, v.GetInt(cfgKeyBatchSize))
	assert.Equal(t, string(types.RelChildOf), v.GetString(cfgKeyParentRelation))
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfg := "backend: sqlite\nsync_strategy: batch\nbatch_size: 7\nparent_relation: belongs_to\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644))
	t.Setenv("LINKGRAPH_BATCH_SIZE", "11")

	v, err := loadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, types.SyncBatch, v.GetString(cfgKeySyncStrategy))
	assert.Equal(t, 11, v.GetInt(cfgKeyBatchSize), "environment overrides the file")

	bc, err := backendConfig(v, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, types.RelBelongsTo, bc.ParentRelation)
	assert.Equal(t, 11, bc.SQLiteConfig.BatchSize)
}

func TestBackendConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("backend: postgres\n"), 0o644))
	v, err := loadConfig(dir)
	require.NoError(t, err)

	_, err = backendConfig(v, t.TempDir())
	require.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", "json")
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	_, err = newLogger(&buf, "loud", "text")
	require.Error(t, err)
	_, err = newLogger(&buf, "warn", "xml")
	require.Error(t, err)
}
