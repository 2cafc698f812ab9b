package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakerline/qtour/internal/model"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the next cycle for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initTour(ctx, startTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		category := model.Category(startCategory)
		if err := env.Tour.Refresh(ctx, category); err != nil {
			return err
		}

		cycle := startCycle
		if cycle == 0 {
			cycle = env.Tour.CurrentCycle(category)
		}

		err = env.Tour.StartCycle(ctx, category, cycle, model.CycleContext{
			Product:   startProduct,
			Executive: startExecutive,
			Batch:     startBatch,
			Line:      startLine,
			Shift:     startShift,
		})
		if err != nil {
			return err
		}

		fmt.Printf("started %s cycle %d\n", category, cycle)
		return nil
	},
}

var (
	startTourID    string
	startCategory  string
	startCycle     int
	startProduct   string
	startExecutive string
	startBatch     string
	startLine      string
	startShift     string
)

func init() {
	f := startCmd.Flags()
	f.StringVar(&startTourID, "tour", "", "tour identifier")
	f.StringVar(&startCategory, "category", "", "evaluation category")
	f.IntVar(&startCycle, "cycle", 0, "cycle number (default: next cycle)")
	f.StringVar(&startProduct, "product", "", "product under inspection")
	f.StringVar(&startExecutive, "executive", "", "auditor name")
	f.StringVar(&startBatch, "batch", "", "batch identifier")
	f.StringVar(&startLine, "line", "", "production line")
	f.StringVar(&startShift, "shift", "", "shift code")
	_ = startCmd.MarkFlagRequired("tour")
	_ = startCmd.MarkFlagRequired("category")

	rootCmd.AddCommand(startCmd)
}
