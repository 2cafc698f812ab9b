package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or discard the offline submission queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued offline submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initTour(ctx, queueTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		subs, err := env.Tour.PendingSubmissions(ctx)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, sub := range subs {
			fmt.Printf("%s  %s cycle %d  %d records  enqueued %s\n",
				sub.ID, sub.Category, sub.CycleNumber, len(sub.Records),
				sub.EnqueuedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard all queued offline submissions (irreversible)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !queueDiscardYes {
			return fmt.Errorf("discard drops unsynced work permanently; re-run with --yes to confirm")
		}

		env, err := initTour(ctx, queueTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Tour.DiscardOffline(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("discarded %d queued submissions\n", n)
		return nil
	},
}

var (
	queueTourID     string
	queueDiscardYes bool
)

func init() {
	queueCmd.PersistentFlags().StringVar(&queueTourID, "tour", "", "tour identifier")
	_ = queueCmd.MarkPersistentFlagRequired("tour")
	queueDiscardCmd.Flags().BoolVar(&queueDiscardYes, "yes", false, "confirm discard")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDiscardCmd)
	rootCmd.AddCommand(queueCmd)
}
