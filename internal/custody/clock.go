// Package custody implements the external bitcoin-custodian integration:
// a Custodian holds an encrypted provider configuration, and each Wallet
// it opens on behalf of a credit facility tracks the custodian's latest
// reported balance, syncing into internal/credit's Collateral through the
// shared outbox stream.
package custody

import "time"

// clock is a seam so tests can observe AuditInfo.At without depending on
// wall-clock time.
var clock = time.Now
