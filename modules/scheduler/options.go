package scheduler

import (
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the scheduler. Bound from the "Scheduler" section.
type Options struct {
	apphost.BaseModuleOptions

	// WorkerCount is how many jobs may run at once.
	WorkerCount int `default:"5"`

	// QueueSize bounds due jobs waiting for a worker.
	QueueSize int `default:"100"`

	// CheckInterval is how often due jobs are looked up.
	CheckInterval time.Duration `default:"1s"`

	// Retention is how long execution history is kept. Zero keeps it forever.
	Retention time.Duration `default:"168h"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Range("WorkerCount", func(o *Options) int { return o.WorkerCount }, 1, 1000).
		Rule("QueueSize", func(o *Options) bool { return o.QueueSize > 0 }, "must be positive").
		Rule("CheckInterval", func(o *Options) bool { return o.CheckInterval > 0 }, "must be positive").
		Rule("Retention", func(o *Options) bool { return o.Retention >= 0 }, "must not be negative"), nil
}
