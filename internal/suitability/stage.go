package suitability

// Stage is how far a run has progressed. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageDistanceComputed
	StageStatisticsComputed
	StageRemapTableBuilt
	StageReclassified
	StagePersisted
	StageCleanedUp
)

var stageNames = [...]string{
	"idle",
	"distance_computed",
	"statistics_computed",
	"remap_table_built",
	"reclassified",
	"persisted",
	"cleaned_up",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// ProgressSteps is the number of progress positions a run advances through.
const ProgressSteps = 7
