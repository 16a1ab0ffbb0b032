package jobs

import (
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures job processing. Bound from the "Jobs" section.
type Options struct {
	apphost.BaseModuleOptions

	// MaxWorkers bounds concurrent jobs on the default queue.
	MaxWorkers int `default:"100"`

	// Queues adds named queues with their own worker limits, e.g. Jobs:Queues:email=5.
	Queues map[string]int

	// StopTimeout bounds how long running jobs may take to finish on shutdown.
	StopTimeout time.Duration `default:"30s"`

	// Schedules maps a registered task name to a five field cron expression.
	Schedules map[string]string
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		if o.MaxWorkers < 1 || o.MaxWorkers > 10000 {
			errs = append(errs, apphost.ValidationError{Field: "MaxWorkers", Message: "must be between 1 and 10000"})
		}
		for name, workers := range o.Queues {
			if workers < 1 {
				errs = append(errs, apphost.ValidationError{Field: "Queues:" + name, Message: "must be positive"})
			}
		}
		for name, expr := range o.Schedules {
			if _, err := parseSchedule(expr); err != nil {
				errs = append(errs, apphost.ValidationError{Field: "Schedules:" + name, Message: err.Error()})
			}
		}
		if o.StopTimeout <= 0 {
			errs = append(errs, apphost.ValidationError{Field: "StopTimeout", Message: "must be positive"})
		}
		return errs
	}), nil
}
