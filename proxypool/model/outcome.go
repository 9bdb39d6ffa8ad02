package model

// State 是连通性分类的结果。
type State int

const (
	StateFailed State = iota
	StatePotential
	StateWorking
)

func (s State) String() string {
	switch s {
	case StateWorking:
		return "working"
	case StatePotential:
		return "potential"
	default:
		return "failed"
	}
}

// Stage records which probe decided an outcome.
type Stage int

const (
	StageNone Stage = iota
	StageTCP
	StageHTTP
)

func (s Stage) String() string {
	switch s {
	case StageTCP:
		return "tcp"
	case StageHTTP:
		return "http"
	default:
		return "none"
	}
}

// Outcome 是一次探测序列的结果，生成后即被结果汇总器消费，不再修改。
type Outcome struct {
	Descriptor *Descriptor
	State      State
	Stage      Stage
	// Err is the last probe error, kept for logging only.
	Err error
}
