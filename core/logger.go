package core

// Logger is any service that can log application events.
// args may contain an error, a map[string]interface{} of extras and the user.User involved.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Metrics records domain counters.
type Metrics interface {
	ConflictDetected(scope string)
	SweepCompleted(scanned, changed, failed int, took float64)
}

type nopMetrics struct{}

func (nopMetrics) ConflictDetected(string)               {}
func (nopMetrics) SweepCompleted(int, int, int, float64) {}

// NopMetrics discards everything.
var NopMetrics Metrics = nopMetrics{}
