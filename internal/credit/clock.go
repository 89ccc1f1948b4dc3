// Package credit implements the §4.4 credit facility lifecycle engine:
// a proposal is collateralized and approved into a facility, the
// facility is disbursed against and accrues interest in cycles, the
// resulting obligations are tracked through a due/overdue/defaulted
// status machine and paid down by installment allocation, and collateral
// that falls short of the facility's terms triggers liquidation.
package credit

import "time"

// clock is a seam so tests can observe AuditInfo.At and due-date math
// without depending on wall-clock time.
var clock = time.Now
