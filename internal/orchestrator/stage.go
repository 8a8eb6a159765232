package orchestrator

// Stage names the next step of a turn.
type Stage int

const (
	StageRoute Stage = iota
	StageSchedule
	StageFillSlots
	StageExecute
	StageCompose
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageRoute:
		return "route"
	case StageSchedule:
		return "schedule"
	case StageFillSlots:
		return "fill_slots"
	case StageExecute:
		return "execute"
	case StageCompose:
		return "compose"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}
