package ir

// Version constants for the value encoding and engine.
const (
	// IRVersion is the canonical encoding version stored with persisted runs.
	IRVersion = "1"

	// EngineVersion is the tinkergo engine version.
	EngineVersion = "0.1.0"
)
