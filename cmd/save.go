package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/normalize"
)

// formFile is the JSON shape the presentation layer writes for one
// completed cycle form.
type formFile struct {
	Context model.CycleContext `json:"context"`
	Items   []struct {
		ItemKey           string `json:"item_key"`
		Area              string `json:"area,omitempty"`
		ItemIndex         int    `json:"item_index,omitempty"`
		Criteria          string `json:"criteria"`
		DefectCategory    string `json:"defect_category,omitempty"`
		Remarks           string `json:"remarks,omitempty"`
		DefectDescription string `json:"defect_description,omitempty"`
	} `json:"items"`
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a completed cycle from a form-state file",
	Long: `Validates and saves one cycle's checklist form. Online saves go straight
to the remote service; with --offline the cycle is queued locally and
delivered by the next sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		form, err := readFormFile(saveFile)
		if err != nil {
			return err
		}

		env, err := initTour(ctx, saveTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		category := model.Category(saveCategory)
		if saveOffline {
			sub, err := env.Tour.QueueCycle(ctx, category, saveCycle, form)
			if err != nil {
				return err
			}
			fmt.Printf("queued %s cycle %d offline (%d records, submission %s)\n",
				category, saveCycle, len(sub.Records), sub.ID)
			return nil
		}

		if err := env.Tour.SaveCycle(ctx, category, saveCycle, form); err != nil {
			return eris.Wrap(err, "save failed; re-run with --offline to queue locally")
		}
		fmt.Printf("saved %s cycle %d\n", category, saveCycle)
		return nil
	},
}

func readFormFile(path string) (normalize.FormState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return normalize.FormState{}, eris.Wrapf(err, "read form file %s", path)
	}
	var ff formFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return normalize.FormState{}, eris.Wrapf(err, "parse form file %s", path)
	}

	form := normalize.FormState{Context: ff.Context}
	for _, item := range ff.Items {
		form.Items = append(form.Items, normalize.FormItem{
			ItemKey:           item.ItemKey,
			Area:              item.Area,
			ItemIndex:         item.ItemIndex,
			Criteria:          item.Criteria,
			DefectCategory:    item.DefectCategory,
			Remarks:           item.Remarks,
			DefectDescription: item.DefectDescription,
		})
	}
	return form, nil
}

var (
	saveTourID   string
	saveCategory string
	saveCycle    int
	saveFile     string
	saveOffline  bool
)

func init() {
	f := saveCmd.Flags()
	f.StringVar(&saveTourID, "tour", "", "tour identifier")
	f.StringVar(&saveCategory, "category", "", "evaluation category")
	f.IntVar(&saveCycle, "cycle", 0, "cycle number")
	f.StringVar(&saveFile, "file", "", "form-state JSON file")
	f.BoolVar(&saveOffline, "offline", false, "queue locally instead of sending")
	_ = saveCmd.MarkFlagRequired("tour")
	_ = saveCmd.MarkFlagRequired("category")
	_ = saveCmd.MarkFlagRequired("cycle")
	_ = saveCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(saveCmd)
}
