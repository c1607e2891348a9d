package trigger

import "github.com/sirupsen/logrus"

// Dock is the presentation collaborator asked to expand itself whenever a
// trigger is attempted, so the user sees progress regardless of outcome.
type Dock interface {
	Show(reason string)
}

// LogDock records dock requests in the log; the default when no
// presentation surface is attached.
type LogDock struct {
	logger *logrus.Entry
}

// NewLogDock creates a log-only dock
func NewLogDock(logger *logrus.Logger) *LogDock {
	return &LogDock{logger: logger.WithField("component", "dock")}
}

// Show logs the dock request
func (d *LogDock) Show(reason string) {
	d.logger.WithField("reason", reason).Info("Dock show requested")
}

// MultiDock fans a dock request out to several docks
type MultiDock []Dock

// Show forwards to every dock
func (m MultiDock) Show(reason string) {
	for _, dock := range m {
		dock.Show(reason)
	}
}
