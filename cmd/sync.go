package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay the offline queue against the remote service",
	Long: `Delivers queued offline submissions in FIFO order per category. A
submission whose batch is rejected stays in the queue and stops its
category's replay so later cycles cannot overtake it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initTour(ctx, syncTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		if syncCategory != "" {
			res, err := env.Tour.Sync(ctx, model.Category(syncCategory))
			if err != nil {
				return err
			}
			printSyncResult(model.Category(syncCategory), res)
			return nil
		}

		results, err := env.Tour.SyncAll(ctx)
		for category, res := range results {
			printSyncResult(category, res)
		}
		return err
	},
}

func printSyncResult(category model.Category, res *syncer.Result) {
	fmt.Printf("%s: delivered %d, failed %d\n", category, len(res.Delivered), len(res.Failed))
	for _, f := range res.Failed {
		fmt.Printf("  cycle %d retained: %s\n", f.Submission.CycleNumber, f.Reason)
	}
}

var (
	syncTourID   string
	syncCategory string
)

func init() {
	f := syncCmd.Flags()
	f.StringVar(&syncTourID, "tour", "", "tour identifier")
	f.StringVar(&syncCategory, "category", "", "sync a single category")
	_ = syncCmd.MarkFlagRequired("tour")

	rootCmd.AddCommand(syncCmd)
}
