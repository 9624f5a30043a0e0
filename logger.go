package mongocache

// Fields carries structured context for one log line. The mediator always sets
// "ns"; "id" and "err" appear when an entry concerns one document.
type Fields map[string]any

// Logger is the leveled sink the mediator writes to. Adapters for zap, logrus and
// slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything; it is what a nil Options.Logger becomes.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
