package appliance

// Logger defines the logging interface used by the appliance package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives counters and gauges from the connection and message
// paths. Values are plain strings so implementations need not import this
// package.
type Observer interface {
	// ConnectAttempt is called once per transport attempt.
	ConnectAttempt(transport string, ok bool)

	// StatusChanged is called whenever the connection status changes.
	StatusChanged(status string)

	// MessageReceived is called for every decoded message.
	MessageReceived(messageType string)

	// MessageDropped is called when a payload is discarded before it reaches
	// the snapshot.
	MessageDropped(reason string)

	// CommandSent is called for every SendCommand, with the publish result.
	CommandSent(command string, err error)
}

type noopObserver struct{}

func (noopObserver) ConnectAttempt(string, bool) {}
func (noopObserver) StatusChanged(string)        {}
func (noopObserver) MessageReceived(string)      {}
func (noopObserver) MessageDropped(string)       {}
func (noopObserver) CommandSent(string, error)   {}
