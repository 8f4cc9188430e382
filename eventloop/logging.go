package eventloop

import "github.com/joeycumines/logiface"

// loopLogAdapter bridges a *logiface.Logger[logiface.Event] (or its
// absence) to the loop's narrow internal loopLog surface.
type loopLogAdapter struct {
	logger *logiface.Logger[logiface.Event]
}

func newLoopLog(logger *logiface.Logger[logiface.Event]) loopLog {
	return loopLogAdapter{logger: logger}
}

func (l loopLogAdapter) Errorf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Err().Logf(format, args...)
}

func (l loopLogAdapter) Debugf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Debug().Logf(format, args...)
}
