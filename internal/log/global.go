package log

import "sync"

// The process-wide default logger. Most of the engine runs inside a hook
// invocation where threading a logger through every constructor is not
// worth it; components accept an injected logger and fall back to this.
var (
	globalMu sync.RWMutex
	global   *Logger
)

// SetDefaultLogger replaces the process-wide default logger. The CLI layer
// calls this once after parsing flags; passing nil resets to lazy defaults.
func SetDefaultLogger(logger *Logger) {
	globalMu.Lock()
	global = logger
	globalMu.Unlock()
}

// DefaultLogger returns the process-wide default, creating a stderr text
// logger on first use when none was configured.
func DefaultLogger() *Logger {
	globalMu.RLock()
	logger := global
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	logger = Default()
	SetDefaultLogger(logger)
	return logger
}
