package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mesh-intelligence/linkgraph/internal/engine"
	"github.com/mesh-intelligence/linkgraph/internal/sqlite"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// graph is what the commands need from an attached backend.
type graph interface {
	types.LinkManager
	Snapshot() ([]types.Link, error)
	Detach() error
}

// memoryGraph adapts the in-process engine for the memory backend. Nothing
// survives the process.
type memoryGraph struct {
	*engine.Manager
}

func (g memoryGraph) Snapshot() ([]types.Link, error) { return g.Manager.Snapshot(), nil }
func (g memoryGraph) Detach() error                   { return nil }

// openGraph resolves the data directory, builds the configured backend and
// attaches it. The caller must defer Detach.
func (a *app) openGraph() (graph, error) {
	dataDir, err := a.dataDir()
	if err != nil {
		return nil, err
	}
	cfg, err := backendConfig(a.v, dataDir)
	if err != nil {
		return nil, err
	}

	if cfg.Backend == types.BackendMemory {
		a.logger.Warn("memory backend does not persist links")
		return memoryGraph{engine.New(engine.WithLogger(a.logger))}, nil
	}

	backend := sqlite.NewBackend(sqlite.WithLogger(a.logger))
	if err := backend.Attach(cfg); err != nil {
		return nil, systemError("attach backend: %w", err)
	}
	return backend, nil
}

// detach closes g and reports a failure to flush as a warning.
func (a *app) detach(g graph) {
	if err := g.Detach(); err != nil {
		fmt.Fprintln(a.stderr, "warning: detach:", err)
	}
}

// warn prints a persistence warning. The mutation itself succeeded.
func (a *app) warn(err error) {
	if err != nil {
		fmt.Fprintln(a.stderr, "warning:", err)
	}
}

func parseRelation(s string) (types.Relation, error) {
	r, err := types.ParseRelation(s)
	if err != nil {
		return "", fmt.Errorf("%w (run 'linkgraph relations' for the list)", err)
	}
	return r, nil
}

// parseMetadata turns key=value pairs into link metadata.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: invalid metadata %q (expected key=value)", types.ErrValidation, p)
		}
		meta[k] = v
	}
	return meta, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printLinks(w io.Writer, links []types.Link) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tRELATION\tTO\tPRIORITY\tCREATED")
	for _, l := range links {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.FromID, l.Relation, l.ToID, l.Priority, l.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
