package jobregistry

import "time"

// timeAfterFunc is a package-level indirection over time.AfterFunc so tests
// can substitute a fast-firing timer without a real deadline wait.
var timeAfterFunc = time.AfterFunc
