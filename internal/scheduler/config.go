package scheduler

import "github.com/discord-agent/orchestrator/internal/config"

// ParamsFromConfig adapts config.ReminderConfig into the Params this
// package accepts, keeping the scheduler package independent of the
// config package's YAML tags.
func ParamsFromConfig(cfg config.ReminderConfig) Params {
	return Params{
		MaxRemindersPerUser: cfg.MaxRemindersPerUser,
		GraceWindow:         cfg.GraceWindow,
		MaxRetryAttempts:    cfg.MaxRetryAttempts,
	}
}

// NewStoreFromConfig builds the durable Store named by the reminder
// config. CleanupExpiredEvents has no separate cleanup pass to run: stale
// events are already dropped at load time (grace window) and abandoned
// events are deleted as soon as retries are exhausted, so there is
// nothing left to sweep later.
func NewStoreFromConfig(cfg config.ReminderConfig) Store {
	path := cfg.PersistenceFile
	if path == "" {
		path = "reminders.json"
	}
	return NewFileStore(path)
}
