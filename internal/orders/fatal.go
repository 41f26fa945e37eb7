package orders

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ExitFunc is called after Fatalf logs its diagnostic. Tests that need to
// exercise invariant-violation paths replace it with a panic so the test
// binary survives.
var ExitFunc = os.Exit

// Fatalf reports an invariant violation — pool exhaustion, queue overflow,
// a missing reverse-index entry, corrupt book links, an unknown request
// kind. These are programming errors, not runtime conditions, and abort
// the process with a diagnostic.
func Fatalf(component, format string, args ...any) {
	log.Error().Str("component", component).Msgf(format, args...)
	ExitFunc(1)
}
