package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// relationInfo describes one registered relation.
type relationInfo struct {
	Name      types.Relation `json:"name"`
	Category  types.Category `json:"category"`
	Inverse   types.Relation `json:"inverse,omitempty"`
	Symmetric bool           `json:"symmetric"`
	Acyclic   bool           `json:"acyclic"`
}

func describeRelations() []relationInfo {
	var out []relationInfo
	for _, r := range types.AllRelations() {
		cat, _ := r.Category()
		info := relationInfo{Name: r, Category: cat, Symmetric: r.IsSymmetric(), Acyclic: r.IsAcyclic()}
		if r.HasInverse() {
			info.Inverse = r.Inverse()
		}
		out = append(out, info)
	}
	return out
}

func newRelationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relations",
		Short: "List the registered relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := describeRelations()
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RELATION\tCATEGORY\tINVERSE\tACYCLIC")
			for _, i := range infos {
				inverse := string(i.Inverse)
				if i.Symmetric {
					inverse = "(symmetric)"
				} else if inverse == "" {
					inverse = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", i.Name, i.Category, inverse, i.Acyclic)
			}
			return tw.Flush()
		},
	}
}
