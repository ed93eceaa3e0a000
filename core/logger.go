package core

// Logger is the application wide logger.
// args may contain: error, map[string]interface{} (extra fields) and the logged in user.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogUser identifies the logged in user attached to a log entry.
type LogUser struct {
	ID       string
	Username string
	Email    string
}
