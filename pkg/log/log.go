// Package log provides the single structured logger every other package
// in this module logs through, so a host process wiring several command
// queues together gets one consistent log stream instead of each package
// inventing its own formatting.
package log

import "github.com/sirupsen/logrus"

// Base is the root logger; callers add fields with WithComponent rather
// than reaching into this directly.
var Base = logrus.New()

// WithComponent returns an entry tagged with which package emitted it,
// e.g. "queue", "dispatch", "sysmem".
func WithComponent(name string) *logrus.Entry {
	return Base.WithField("component", name)
}
