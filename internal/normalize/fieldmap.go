package normalize

import "github.com/bakerline/qtour/internal/model"

// fieldMap names the remote-service columns a category's rows use. The
// checklist evaluations key items by ItemName, the area-line-clearance
// sheet by AreaName, and the machine-based sheets by MachineName.
type fieldMap struct {
	cycle       string
	item        string
	area        string
	itemIndex   string
	criteria    string
	defect      string
	remarks     string
	description string
	recordedAt  string
}

var checklistFields = fieldMap{
	cycle:       "CycleNo",
	item:        "ItemName",
	area:        "AreaName",
	itemIndex:   "ItemIndex",
	criteria:    "Criteria",
	defect:      "DefectCategory",
	remarks:     "Remarks",
	description: "DefectDescription",
	recordedAt:  "RecordedAt",
}

var machineFields = fieldMap{
	cycle:       "CycleNo",
	item:        "MachineName",
	area:        "AreaName",
	itemIndex:   "ItemIndex",
	criteria:    "TestResult",
	defect:      "DefectCategory",
	remarks:     "Remarks",
	description: "DefectDescription",
	recordedAt:  "RecordedAt",
}

func fieldMapFor(category model.Category) fieldMap {
	switch category {
	case model.CategorySealIntegrity, model.CategoryNetWeight, model.CategoryBakingProcess:
		return machineFields
	default:
		return checklistFields
	}
}
