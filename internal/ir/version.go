package ir

// Version constants for the wire model and engine.
const (
	// SchemaVersion is the version of the persisted HookState/Delta model.
	SchemaVersion = "1"

	// EngineVersion is the rehook engine version.
	EngineVersion = "0.1.0"
)
