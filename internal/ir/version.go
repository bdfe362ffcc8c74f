package ir

// Version constants for the reactor format and engine.
const (
	// IRVersion is the reactor spec schema version.
	IRVersion = "1"

	// EngineVersion is the ripple engine version.
	EngineVersion = "0.1.0"
)
