package domain

// WorkflowStage identifies one of the four pipeline stages.
type WorkflowStage string

const (
	StageSave    WorkflowStage = "save"
	StageFetch   WorkflowStage = "fetch"
	StagePrepare WorkflowStage = "prepare"
	StageExtract WorkflowStage = "extract"
)

// WorkflowProgress is a consistent snapshot of pipeline progress, emitted
// after every unit of work. Percentage is on the unified 0-100 scale and
// never decreases within one run.
type WorkflowProgress struct {
	Stage       WorkflowStage `json:"stage"`
	StageNumber int           `json:"stage_number"`
	TotalStages int           `json:"total_stages"`
	CurrentItem int           `json:"current_item"`
	TotalItems  int           `json:"total_items"`
	Percentage  int           `json:"percentage"`
	Message     string        `json:"message"`
}

// ProgressFunc receives progress snapshots. Implementations must be fast
// and must not block: they run inline on the coordinator's settle path.
type ProgressFunc func(WorkflowProgress)
