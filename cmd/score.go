package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/bakerline/qtour/internal/model"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the tour's product quality index",
	Long: `Aggregates the fully reconciled record set across every category into
per-category scores and the weighted overall index, with a PASS verdict
at 90.00 and HOLD below.

Examples:
  # Print the summary table
  score --tour TOUR-0412

  # Export to spreadsheet for the shift report
  score --tour TOUR-0412 --format xlsx --output pqi.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initTour(ctx, scoreTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		for _, category := range model.AllCategories {
			if err := env.Tour.Refresh(ctx, category); err != nil {
				return err
			}
		}

		summary, err := env.Tour.ScoreSummary(ctx)
		if err != nil {
			return err
		}

		switch scoreFormat {
		case "csv":
			return writeScoreCSV(summary, scoreOutput)
		case "xlsx":
			return writeScoreXLSX(summary, scoreOutput)
		default:
			printScoreTable(summary)
			return nil
		}
	},
}

func printScoreTable(summary model.ScoreSummary) {
	fmt.Printf("%-16s %8s %10s %10s %8s %8s\n",
		"CATEGORY", "CYCLES", "MAX", "OBTAINED", "PCT", "BONUS")
	for _, row := range summary.PerCategory {
		fmt.Printf("%-16s %8d %10.0f %10.0f %8.2f %8.2f\n",
			row.Category, row.CyclesObserved, row.MaxScore,
			row.ScoreObtained, row.ScorePercent, row.BonusScore)
	}
	fmt.Printf("\nfinal score: %.2f  status: %s\n", summary.FinalScore, summary.Status)
}

func scoreRows(summary model.ScoreSummary) [][]string {
	rows := [][]string{
		{"category", "cycles", "max_score", "deduction", "obtained", "percent", "weight", "bonus"},
	}
	for _, row := range summary.PerCategory {
		rows = append(rows, []string{
			string(row.Category),
			strconv.Itoa(row.CyclesObserved),
			strconv.FormatFloat(row.MaxScore, 'f', 2, 64),
			strconv.FormatFloat(row.Deduction, 'f', 2, 64),
			strconv.FormatFloat(row.ScoreObtained, 'f', 2, 64),
			strconv.FormatFloat(row.ScorePercent, 'f', 2, 64),
			strconv.FormatFloat(row.Weight, 'f', 2, 64),
			strconv.FormatFloat(row.BonusScore, 'f', 2, 64),
		})
	}
	rows = append(rows, []string{"final", "", "", "", "", "", "", strconv.FormatFloat(summary.FinalScore, 'f', 2, 64)})
	rows = append(rows, []string{"status", "", "", "", "", "", "", string(summary.Status)})
	return rows
}

func writeScoreCSV(summary model.ScoreSummary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(scoreRows(summary)); err != nil {
		return eris.Wrap(err, "write csv")
	}
	return nil
}

func writeScoreXLSX(summary model.ScoreSummary, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("PQI")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}
	for _, cells := range scoreRows(summary) {
		row := sheet.AddRow()
		for _, cell := range cells {
			row.AddCell().SetString(cell)
		}
	}
	return eris.Wrapf(file.Save(path), "save %s", path)
}

var (
	scoreTourID string
	scoreFormat string
	scoreOutput string
)

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreTourID, "tour", "", "tour identifier")
	f.StringVar(&scoreFormat, "format", "table", "output format (table, csv, xlsx)")
	f.StringVar(&scoreOutput, "output", "pqi.csv", "output path for csv/xlsx")
	_ = scoreCmd.MarkFlagRequired("tour")

	rootCmd.AddCommand(scoreCmd)
}
