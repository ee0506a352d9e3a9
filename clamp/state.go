package clamp

import (
	"errors"

	"github.com/ByLCY/textfit/fit"
)

// State 是组件当前所处的阶段。
type State int

const (
	StateDetached State = iota
	StateMeasuring
	StateFitted
	StateExpanded
)

func (s State) String() string {
	switch s {
	case StateMeasuring:
		return "measuring"
	case StateFitted:
		return "fitted"
	case StateExpanded:
		return "expanded"
	default:
		return "detached"
	}
}

// Trigger 标识一次重新计算的来源。
type Trigger int

const (
	TriggerAttach Trigger = iota
	TriggerResize
	TriggerMutate
	TriggerExpand
	TriggerCollapse
)

func (t Trigger) String() string {
	switch t {
	case TriggerAttach:
		return "attach"
	case TriggerResize:
		return "resize"
	case TriggerMutate:
		return "mutate"
	case TriggerExpand:
		return "expand"
	case TriggerCollapse:
		return "collapse"
	default:
		return "unknown"
	}
}

// ErrDetached 表示组件尚未 Attach 或已经 Detach。
var ErrDetached = errors.New("clamp: 组件未挂载")

// Snapshot 是一次发布的组件状态。Err 非空时 Box/Content/Result 仍是上一次成功的结果。
type Snapshot struct {
	ID       string
	Seq      uint64
	State    State
	Box      fit.Box
	Content  []fit.Node
	Result   fit.Result
	Expanded bool
	Err      error
}

// Visible 返回当前应展示的候选：展开态为完整内容加 collapse slot。
func (s Snapshot) Visible() fit.Candidate {
	if s.Expanded {
		return fit.Expanded(s.Content)
	}
	return s.Result.Candidate
}

// Text 返回当前可见文本（含省略号）。
func (s Snapshot) Text() string {
	return fit.VisibleText(s.Content, s.Visible())
}
