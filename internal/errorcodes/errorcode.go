// Package errorcodes defines runtime pool errors using a structured type.
// EnvError holds the two-character code and human-readable description.
package errorcodes

// Predefined runtime errors.
var (
	Err00                 = EnvError{"00", "No error"}
	ErrResourceExhausted  = EnvError{"RE", "No free script engine instance"}
	ErrScriptNotFound     = EnvError{"SN", "Script file does not exist"}
	ErrDirectoryMissing   = EnvError{"DM", "Script home directory does not exist"}
	ErrFileRead           = EnvError{"FR", "Script file could not be read"}
	ErrEngineConstruction = EnvError{"EC", "Script engine instance could not be constructed"}
	ErrInvalidPoolSize    = EnvError{"PS", "Pool size must be at least one"}
	ErrInvalidInstance    = EnvError{"II", "Unknown or invalid engine instance"}
	ErrDuplicateArgument  = EnvError{"DA", "Duplicate script argument name"}
	ErrModuleNotFound     = EnvError{"MN", "Module could not be resolved"}
	ErrUnknownCommand     = EnvError{"UC", "Unknown debug command"}
	ErrMalformedRequest   = EnvError{"MR", "Malformed debug request"}
	ErrEvalFailed         = EnvError{"EF", "Expression evaluation failed"}
	ErrNoInstance         = EnvError{"NI", "No instance bound to this port"}
	ErrStatsUnavailable   = EnvError{"SU", "Process statistics unavailable"}
)

// EnvError represents a runtime error with its code and description.
type EnvError struct {
	Code        string // two-character error code
	Description string // human-readable description
}

// Error implements the Go error interface: "<Code>: <Description>".
func (e EnvError) Error() string {
	return e.Code + ": " + e.Description
}

// CodeOnly returns only the error code (e.g., "RE"), for embedding in debug responses.
func (e EnvError) CodeOnly() string {
	return e.Code
}
