package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <block>",
		Short: "Remove every link touching a block",
		Long:  "Remove every link whose source or target is the block, e.g. after the block was deleted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			res, err := g.DeleteLinksForBlock(cmd.Context(), args[0])
			if err != nil {
				return classify(err)
			}
			a.warn(res.Warning)

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"removed": res.Count, "links": res.Removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d links\n", res.Count)
			return nil
		},
	}
}

// importFailure is one rejected record in the import report.
type importFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Create or update links from a JSONL file",
		Long: `Read one link per line (the export format) and upsert each one.
Existing links keep their ID and creation time; priority, metadata and
created_by are updated. Each line succeeds or fails on its own.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return systemError("open import file: %w", err)
				}
				defer f.Close()
				in = f
			}
			specs, lines, failures, err := readSpecs(in)
			if err != nil {
				return systemError("read import file: %w", err)
			}
			total := len(specs) + len(failures)

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			created, updated := 0, 0
			for _, o := range g.BulkUpsert(cmd.Context(), specs) {
				if o.Err != nil {
					failures = append(failures, importFailure{Line: lines[o.Index], Error: o.Err.Error()})
					continue
				}
				a.warn(o.Warning)
				if o.Operation == types.OpCreate {
					created++
				} else {
					updated++
				}
			}

			if a.flags.jsonMode {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"created": created, "updated": updated, "failed": failures,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, failed %d\n", created, updated, len(failures))
				for _, f := range failures {
					fmt.Fprintf(a.stderr, "line %d: %s\n", f.Line, f.Error)
				}
			}
			if len(failures) > 0 {
				return fmt.Errorf("%w: %d of %d records rejected", types.ErrValidation, len(failures), total)
			}
			return nil
		},
	}
}

// readSpecs decodes one link per non-empty line. Lines that do not decode are
// reported as failures; lines maps each spec to its line number.
func readSpecs(r io.Reader) (specs []types.LinkSpec, lines []int, failures []importFailure, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var l types.Link
		if err := json.Unmarshal(line, &l); err != nil {
			failures = append(failures, importFailure{Line: n, Error: err.Error()})
			continue
		}
		specs = append(specs, types.LinkSpec{
			FromID:    l.FromID,
			ToID:      l.ToID,
			Relation:  l.Relation,
			Priority:  l.Priority,
			Metadata:  l.Metadata,
			CreatedBy: l.CreatedBy,
		})
		lines = append(lines, n)
	}
	return specs, lines, failures, scanner.Err()
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every link as JSONL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			links, err := g.Snapshot()
			if err != nil {
				return classify(err)
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return systemError("create export file: %w", err)
				}
				defer f.Close()
				out = f
			}

			w := bufio.NewWriter(out)
			enc := json.NewEncoder(w)
			for _, l := range links {
				if err := enc.Encode(l); err != nil {
					return systemError("encode link: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return systemError("write export: %w", err)
			}
			a.logger.Info("exported links", "count", len(links))
			return nil
		},
	}
}
