package tracker

import "github.com/gputrace/subtracker/slotpool"

// Config carries the one tunable spec.md defines (§6, "Configuration")
// plus the slot-exhaustion policy §9's first open question asks an
// implementer to expose.
type Config struct {
	// MaxLocalMarkerDepth is max-local-marker-depth-per-command-buffer.
	// Zero disables depth filtering.
	MaxLocalMarkerDepth uint32
	// ExhaustionPolicy governs what happens when a hook's slot Acquire
	// fails. Defaults to slotpool.PolicyFatal, the conservative choice
	// spec §9 asks for pending further guidance.
	ExhaustionPolicy slotpool.ExhaustionPolicy
}

// DefaultConfig returns the conservative default: no depth filtering,
// fatal on slot exhaustion.
func DefaultConfig() Config {
	return Config{MaxLocalMarkerDepth: 0, ExhaustionPolicy: slotpool.PolicyFatal}
}
