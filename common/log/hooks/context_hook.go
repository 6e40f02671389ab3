// Package hooks carries logrus hooks shared by the binaries and tests.
package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// contextHook annotates every entry with the file:line of the logging call
// site, derived from the stack.
type contextHook struct {
}

func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire records the call site as the first file frame past the logrus
// machinery, trimmed to a module-relative path where possible.
func (hook contextHook) Fire(entry *logrus.Entry) error {
	lines := strings.Split(string(debug.Stack()), "\n")
	pastLogger := false
	for _, line := range lines {
		if strings.Contains(line, "sirupsen/logrus") {
			pastLogger = true
			continue
		}
		if !pastLogger {
			continue
		}
		// File frames are "\t<path>.go:<line> +0x...": anchor on the first
		// space-delimited token ending in a .go:line location.
		loc := strings.TrimSpace(line)
		if i := strings.IndexByte(loc, ' '); i > 0 {
			loc = loc[:i]
		}
		if !strings.Contains(loc, ".go:") {
			continue
		}
		if i := strings.LastIndex(loc, "hicbem/"); i >= 0 {
			loc = loc[i+len("hicbem/"):]
		}
		entry.Data["file:line"] = loc
		break
	}
	return nil
}
