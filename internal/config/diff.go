package config

// DiffResult describes what changed between two configs. Only settings that
// can be applied without restarting the session are tracked individually;
// everything else sets RestartRequired.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VADChanged          bool
	NewVADEnabled       bool
	NewVADThreshold     float64
	NewEmitEmptyResults bool

	// RestartRequired is set when a field outside the hot-reloadable set
	// differs (endpoints, audio format, reconnect tuning).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD.VADEnabled() != new.VAD.VADEnabled() ||
		old.VAD.Threshold != new.VAD.Threshold ||
		old.VAD.EmitEmptyResults != new.VAD.EmitEmptyResults {
		d.VADChanged = true
		d.NewVADEnabled = new.VAD.VADEnabled()
		d.NewVADThreshold = new.VAD.Threshold
		d.NewEmitEmptyResults = new.VAD.EmitEmptyResults
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Stream != new.Stream ||
		old.Audio != new.Audio ||
		old.Reconnect != new.Reconnect ||
		old.Breaker != new.Breaker ||
		old.Batch != new.Batch {
		d.RestartRequired = true
	}

	return d
}
