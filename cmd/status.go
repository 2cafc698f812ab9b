package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bakerline/qtour/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cycle progress per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initTour(ctx, statusTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		categories := model.AllCategories
		if statusCategory != "" {
			categories = []model.Category{model.Category(statusCategory)}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tCYCLE\tSTATE\tDEFECTS\tMISSED")
		for _, category := range categories {
			if err := env.Tour.Refresh(ctx, category); err != nil {
				return err
			}

			statuses := env.Tour.CycleStatuses(category)
			cycles := make([]int, 0, len(statuses))
			for n := range statuses {
				cycles = append(cycles, n)
			}
			sort.Ints(cycles)

			for _, n := range cycles {
				st := statuses[n]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					category, n, st.State,
					strings.Join(st.DefectItems, ","),
					strings.Join(st.MissedItems, ","),
				)
			}

			if next := env.Tour.CurrentCycle(category); next > 0 {
				fmt.Fprintf(w, "%s\t%d\t%s\t\t\n", category, next, "next")
			}
		}
		return w.Flush()
	},
}

var (
	statusTourID   string
	statusCategory string
)

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusTourID, "tour", "", "tour identifier")
	f.StringVar(&statusCategory, "category", "", "limit to one category")
	_ = statusCmd.MarkFlagRequired("tour")

	rootCmd.AddCommand(statusCmd)
}
