// Package cli implements the linkgraph command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/linkgraph/internal/paths"
	"github.com/mesh-intelligence/linkgraph/pkg/linkgraph"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags     rootFlags
	configDir string
	v         *viper.Viper
	logger    *slog.Logger
	stderr    io.Writer
}

// sysError marks failures of the environment (files, database) rather than
// of the user's input.
type sysError struct{ err error }

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

func systemError(format string, args ...any) error {
	return &sysError{err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var se *sysError
	if errors.As(err, &se) {
		return exitSysError
	}
	return exitUserError
}

// NewRootCmd creates the top-level "linkgraph" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr, logger: slog.New(slog.DiscardHandler)}

	root := &cobra.Command{
		Use:     "linkgraph",
		Short:   "Typed, directed links between blocks",
		Long:    "linkgraph stores typed links between blocks, keeps hierarchy and\ndependency relations acyclic, and answers readiness and ordering queries.",
		Version: linkgraph.Version,

		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.linkgraph)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newLinkCmd(a),
		newLinksCmd(a),
		newReadyCmd(a),
		newTopoCmd(a),
		newCycleCmd(a),
		newPurgeCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newParentCmd(a),
		newRelationsCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "linkgraph:", err)
	}
	os.Exit(exitCode(err))
}

// setup resolves the config directory, loads config.yaml and builds the
// logger. It runs before every subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	a.stderr = cmd.ErrOrStderr()

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return systemError("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return systemError("%w", err)
	}
	logger, err := newLogger(a.stderr, v.GetString(cfgKeyLogLevel), v.GetString(cfgKeyLogFormat))
	if err != nil {
		return err
	}

	a.configDir = configDir
	a.v = v
	a.logger = logger
	return nil
}

// dataDir resolves the data directory:
// --data-dir flag > config.yaml data_dir > LINKGRAPH_DATA_DIR env > $(CWD)/.linkgraph.
func (a *app) dataDir() (string, error) {
	dir, err := paths.ResolveDataDir(a.flags.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return "", systemError("resolve data dir: %w", err)
	}
	return dir, nil
}

// isUserError reports whether err stems from invalid input rather than the
// environment.
func isUserError(err error) bool {
	return errors.Is(err, types.ErrValidation) ||
		errors.Is(err, types.ErrUnknownRelation) ||
		errors.Is(err, types.ErrDuplicateLink) ||
		errors.Is(err, types.ErrCycleDetected)
}

// classify wraps err as a system error unless it is a user error.
func classify(err error) error {
	if err == nil || isUserError(err) {
		return err
	}
	return &sysError{err: err}
}
