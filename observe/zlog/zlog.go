// Package zlog wires the runtime's observer hooks into zerolog and owns the
// process-wide logger setup used by the examples and by services embedding
// the scheduler.
package zlog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/NetPo4ki/go-future/future"
)

// Init builds the console logger, installs it as the zerolog global and
// returns it. app tags every line.
func Init(app string, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a config or env string onto a zerolog level. Unknown and
// empty values fall back to info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "warning":
		return zerolog.WarnLevel
	case "off", "none":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Observer logs every scheduler event. Lifecycle chatter goes out at debug,
// queue depth at trace, unobserved failures at error.
type Observer struct {
	l zerolog.Logger
}

// New returns an observer writing through logger, tagged with the scheduler
// name.
func New(logger zerolog.Logger, scheduler string) *Observer {
	return &Observer{l: logger.With().Str("scheduler", scheduler).Logger()}
}

func (o *Observer) TaskStarted(id future.TaskID, worker future.WorkerID) {
	o.l.Debug().Uint64("task", uint64(id)).Int("worker", int(worker)).Msg("task started")
}

func (o *Observer) TaskSettled(id future.TaskID, state future.State, dur time.Duration, failures int) {
	ev := o.l.Debug()
	if state == future.Faulted {
		ev = o.l.Warn()
	}
	ev.Uint64("task", uint64(id)).
		Stringer("state", state).
		Dur("dur", dur).
		Int("failures", failures).
		Msg("task settled")
}

func (o *Observer) TaskYielded(id future.TaskID, worker future.WorkerID) {
	o.l.Debug().Uint64("task", uint64(id)).Int("worker", int(worker)).Msg("task yielded")
}

func (o *Observer) TaskResumed(id future.TaskID, worker future.WorkerID, waited time.Duration) {
	o.l.Debug().Uint64("task", uint64(id)).Int("worker", int(worker)).Dur("waited", waited).Msg("task resumed")
}

func (o *Observer) QueueDepth(depth int) {
	o.l.Trace().Int("depth", depth).Msg("queue depth")
}

func (o *Observer) UnobservedFailure(id future.TaskID, errs []error) {
	o.l.Error().Uint64("task", uint64(id)).Errs("failures", errs).Msg("unobserved failure")
}
