package orchestrator

import "livecast/server/internal/model"

// Phase 叙事游标的运行阶段
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
	PhaseError    Phase = "error"
)

// State 一场演出的叙事状态，只在 Cursor.Step 内被修改。
type State struct {
	Script []model.ScriptLine
	// Index 下一条要表演的台词，单调不减且不超过剧本长度
	Index int
	// Step 已经提交的 step 数
	Step  int
	Phase Phase
}

// Done 剧本是否已经全部表演完
func (s *State) Done() bool {
	return s.Index >= len(s.Script)
}

// Reduce 只做“事实归约”，把已经决定好的 step 落到状态上，不触发外部调用。
// 约定：无论调度器选了什么动作，游标每个 step 只前进一格；结束 step 把状态置为 finished。
func Reduce(state *State, rec *model.StepRecord) *State {
	if state == nil || rec == nil {
		return state
	}

	state.Step = rec.Step + 1
	if rec.Action == model.ActionEnd {
		state.Index = len(state.Script)
		state.Phase = PhaseFinished
		return state
	}

	if next := rec.LineIndex + 1; next > state.Index && next <= len(state.Script) {
		state.Index = next
	}
	if state.Phase == PhaseIdle {
		state.Phase = PhaseRunning
	}
	return state
}
