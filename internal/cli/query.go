package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/linkgraph/internal/sqlite"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

func newLinksCmd(a *app) *cobra.Command {
	var (
		relation  string
		direction string
		depth     int
		limit     int
		cursor    string
	)
	cmd := &cobra.Command{
		Use:   "links <block>",
		Short: "List links of a block",
		Long: `List the links of a block, highest priority and newest first.

Example:
  linkgraph links epic-2 --direction inbound --relation child_of
  linkgraph links build --depth 3 --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := types.NewQuery().
				WithDirection(types.Direction(direction)).
				WithDepth(depth).
				WithLimit(limit).
				WithCursor(cursor)
			if relation != "" {
				r, err := parseRelation(relation)
				if err != nil {
					return err
				}
				q = q.WithRelation(r)
			}
			if err := q.Validate(); err != nil {
				return err
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			page, err := g.Links(cmd.Context(), args[0], q)
			if err != nil {
				return classify(err)
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			if err := printLinks(cmd.OutOrStdout(), page.Links); err != nil {
				return err
			}
			if page.NextCursor != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nmore: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&relation, "relation", "", "only links of this relation")
	cmd.Flags().StringVar(&direction, "direction", string(types.DirectionOutbound), "outbound, inbound or both")
	cmd.Flags().IntVar(&depth, "depth", types.DefaultQueryDepth, "hops to follow")
	cmd.Flags().IntVar(&limit, "limit", types.DefaultQueryLimit, "maximum links per page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue after a previous page")
	return cmd
}

func newReadyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ready [relation]",
		Short: "List blocks with nothing outstanding for a relation",
		Long: `List the blocks that take part in a relation and have no unresolved
links of it. The default is is_blocked_by: blocks nothing blocks.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := types.RelIsBlockedBy
			if len(args) == 1 {
				var err error
				if r, err = parseRelation(args[0]); err != nil {
					return err
				}
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			ready, err := g.ReadyBlocks(cmd.Context(), r)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), ready)
			}
			return printLines(cmd.OutOrStdout(), ready)
		},
	}
}

func newTopoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "topo <relation> <block>...",
		Short:   "Order blocks so every link of a relation points forward",
		Example: "  linkgraph topo blocks design build test release",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRelation(args[0])
			if err != nil {
				return err
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			order, err := g.TopoSort(cmd.Context(), args[1:], r)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), order)
			}
			return printLines(cmd.OutOrStdout(), order)
		},
	}
}

func newCycleCmd(a *app) *cobra.Command {
	var relation string
	cmd := &cobra.Command{
		Use:   "cycle <block>",
		Short: "Report whether a cycle is reachable from a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRelation(relation)
			if err != nil {
				return err
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			found, err := g.HasCycle(cmd.Context(), args[0], r)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"cycle": found})
			}
			if found {
				fmt.Fprintf(cmd.OutOrStdout(), "cycle of %s reachable from %s\n", r, args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "no cycle of %s reachable from %s\n", r, args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&relation, "relation", string(types.RelBlocks), "relation to follow")
	return cmd
}

func newParentCmd(a *app) *cobra.Command {
	var children bool
	cmd := &cobra.Command{
		Use:   "parent <block>",
		Short: "Show the parent of a block, or its children",
		Long: `Show the parent pointer maintained from the configured parent relation
(parent_relation, default child_of). Requires the sqlite backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			backend, ok := g.(*sqlite.Backend)
			if !ok {
				return fmt.Errorf("parent pointers require the %s backend", types.BackendSQLite)
			}

			if children {
				ids, err := backend.ChildrenOf(cmd.Context(), args[0])
				if err != nil {
					return classify(err)
				}
				if a.flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), ids)
				}
				return printLines(cmd.OutOrStdout(), ids)
			}

			parent, found, err := backend.ParentOf(cmd.Context(), args[0])
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				out := map[string]any{"block": args[0], "parent": nil}
				if found {
					out["parent"] = parent
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no parent\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), parent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&children, "children", false, "list the children instead")
	return cmd
}
