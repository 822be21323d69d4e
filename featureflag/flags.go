package featureflag

// Flag names an optional engine feature that can be turned off at start.
type Flag string

const (
	FlagDisableContactHistory Flag = "DISABLE_CONTACT_HISTORY"
	FlagDisableContactLog     Flag = "DISABLE_CONTACT_LOG"
	FlagDisableContactTracing Flag = "DISABLE_CONTACT_TRACING"
	FlagDisableInfection      Flag = "DISABLE_INFECTION"
	FlagDisableLiveStream     Flag = "DISABLE_LIVE_STREAM"
	FlagDisableParallelTick   Flag = "DISABLE_PARALLEL_TICK"
)
