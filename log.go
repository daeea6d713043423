package orabridge

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// NewLogger returns the default orabridge logger at the given level,
// writing to stderr.
func NewLogger(level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "orabridge",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

// taskLogger returns a sub-logger carrying the task identity.
func taskLogger(l hclog.Logger, tc *TaskContext) hclog.Logger {
	return l.With("task", tc.ID.String(), "kind", string(tc.Kind))
}
