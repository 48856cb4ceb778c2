package entity

// Stage is a pipeline position. The set is fixed and ordered.
type Stage string

const (
	StageNew              Stage = "New"
	StageContacted        Stage = "Contacted"
	StagePresentationDone Stage = "Presentation-done"
	StagePaused           Stage = "Paused"
	StageLost             Stage = "Lost"
)

var stages = []Stage{
	StageNew,
	StageContacted,
	StagePresentationDone,
	StagePaused,
	StageLost,
}

// Stages returns the fixed stage set in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

func (s Stage) Valid() bool {
	for _, st := range stages {
		if s == st {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}
