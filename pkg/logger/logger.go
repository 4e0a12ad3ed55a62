package logger

// LoggerInstance is the interface implemented by logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger fans log calls out to all configured backends.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

// Init sets up the global logger with one or more backends. It must be
// called before any of the logging functions, otherwise they are no-ops.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

func dispatch(fn func(LoggerInstance)) {
	if singleton == nil {
		return
	}

	for _, instance := range singleton.instances {
		fn(instance)
	}
}

// Log writes a message at the default log level to all backends.
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Log(message, keyvals...)
	})
}

// Debug writes a message at DEBUG level to all backends.
func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Debug(message, keyvals...)
	})
}

// Info writes a message at INFO level to all backends.
func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Info(message, keyvals...)
	})
}

// Warn writes a message at WARN level to all backends.
func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Warn(message, keyvals...)
	})
}

// Error writes a message at ERROR level to all backends.
func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Error(message, keyvals...)
	})
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) {
		i.Fatal(message, keyvals...)
	})
}
