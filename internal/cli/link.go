package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

func newLinkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create or remove a single link",
	}
	cmd.AddCommand(newLinkAddCmd(a), newLinkRmCmd(a))
	return cmd
}

func newLinkAddCmd(a *app) *cobra.Command {
	var (
		priority  int
		metadata  []string
		createdBy string
	)
	cmd := &cobra.Command{
		Use:   "add <from> <relation> <to>",
		Short: "Create a link",
		Long: `Create a typed link from one block to another.

Hierarchy and dependency relations reject links that would close a cycle.

Example:
  linkgraph link add build blocks release
  linkgraph link add task-7 child_of epic-2 --priority 3 --meta source=import`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRelation(args[1])
			if err != nil {
				return err
			}
			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			res, err := g.CreateLink(cmd.Context(), types.LinkSpec{
				FromID:    args[0],
				ToID:      args[2],
				Relation:  r,
				Priority:  priority,
				Metadata:  meta,
				CreatedBy: createdBy,
			})
			if err != nil {
				return classify(err)
			}
			a.warn(res.Warning)

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), res.Link)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", res.Link.Key(), res.Link.LinkID)
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "link priority (higher sorts first)")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "metadata key=value (repeatable)")
	cmd.Flags().StringVar(&createdBy, "by", "", "creator recorded on the link")
	return cmd
}

func newLinkRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <from> <relation> <to>",
		Short: "Remove a link",
		Long:  "Remove a link. Removing a link that does not exist is not an error.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRelation(args[1])
			if err != nil {
				return err
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			defer a.detach(g)

			res, err := g.DeleteLink(cmd.Context(), args[0], args[2], r)
			if err != nil {
				return classify(err)
			}
			a.warn(res.Warning)

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"deleted": res.Deleted})
			}
			key := types.LinkKey{FromID: args[0], ToID: args[2], Relation: r}
			if res.Deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "no link %s\n", key)
			}
			return nil
		},
	}
}
