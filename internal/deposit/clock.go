package deposit

import "time"

// clock is a seam so tests can observe AuditInfo.At without depending on
// wall-clock time.
var clock = time.Now
