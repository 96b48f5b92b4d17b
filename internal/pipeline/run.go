package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/examlens/constants"
)

// allowed lists the state each state may move to besides FAILED.
var allowed = map[constants.RunState]constants.RunState{
	constants.RunReceived:   constants.RunExtracting,
	constants.RunExtracting: constants.RunComposing,
	constants.RunComposing:  constants.RunInferring,
	constants.RunInferring:  constants.RunValidating,
	constants.RunValidating: constants.RunCompleted,
}

type run struct {
	id      string
	state   constants.RunState
	history []constants.RunState
	logger  *slog.Logger
}

func newRun(id string, logger *slog.Logger) *run {
	r := &run{id: id, state: constants.RunReceived, logger: logger}
	r.history = append(r.history, r.state)
	logger.Info("pipeline.state", "state", r.state)
	return r
}

// advance moves to next. Out-of-order or post-terminal moves are logged and
// ignored.
func (r *run) advance(next constants.RunState, attrs ...any) {
	ok := !r.state.Terminal() && (next == constants.RunFailed || allowed[r.state] == next)
	if !ok {
		r.logger.Error("pipeline.state.invalid", "from", r.state, "to", next)
		return
	}
	r.history = append(r.history, next)
	r.logger.Info("pipeline.state", append([]any{"from", r.state, "state", next}, attrs...)...)
	r.state = next
}
