package loop

// Config is the immutable per-session configuration, assembled once at
// startup from defaults, then environment, then flags. Nothing reads
// ambient state after the session starts.
type Config struct {
	Model        string
	SystemPrompt string
	Goal         string

	// MaxTurns is the number of turns before the operator is asked whether
	// to continue the segment. 0 means unlimited.
	MaxTurns int

	// ChainLimit caps completed tool-call round trips within one turn.
	// 0 means unlimited. Reaching the cap is not an error.
	ChainLimit int

	ToolsDebug   bool
	ToolsApprove bool

	LogEnabled bool
	LogPath    string

	// Options are per-call model options passed through to the backend.
	Options map[string]string
	APIKey  string
}

// ResolveLogging decides whether session logging is enabled. The precedence
// is explicit and three-way: a disable flag beats a force flag, which beats
// the ambient default (ambientOff true means logging is off unless forced).
func ResolveLogging(force, disable, ambientOff bool) bool {
	if disable {
		return false
	}
	if force {
		return true
	}
	return !ambientOff
}
