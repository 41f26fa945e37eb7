package orders

import "time"

// nowFunc is overridable in tests that need deterministic receive-time
// ordering.
var nowFunc = func() int64 {
	return time.Now().UnixNano()
}
