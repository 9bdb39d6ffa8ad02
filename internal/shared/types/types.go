package types

import "time"

// RunMode 表示一次运行的模式。
type RunMode string

const (
	ModeDiscover  RunMode = "discover"
	ModeEnumerate RunMode = "enumerate"
	ModeReplay    RunMode = "replay"
)

// RunStatus holds the externally visible state of the current or last run.
type RunStatus struct {
	RunID      string    `json:"runId"`
	Mode       RunMode   `json:"mode"`
	Running    bool      `json:"running"`
	Total      int       `json:"total"`
	Done       int       `json:"done"`
	Working    int       `json:"working"`
	Potential  int       `json:"potential"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}
