package obligation

import (
	"time"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

type options struct {
	now         func() time.Time
	loc         *time.Location
	logger      logging.Logger
	onDuplicate func()
}

// Option configures the engine components.
type Option func(*options)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the reporting time zone used to decide "today".
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDuplicateHook registers a callback fired whenever a concurrent creation
// race is resolved by re-reading the winner.
func WithDuplicateHook(fn func()) Option {
	return func(o *options) { o.onDuplicate = fn }
}

func applyOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		loc:    time.UTC,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) today() time.Time {
	return common.Today(o.now(), o.loc)
}

//Personal.AI order the ending
