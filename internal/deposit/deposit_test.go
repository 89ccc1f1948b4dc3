package deposit

import (
	"github.com/northstarcredit/core/internal/authz"
)

func auditInfo() authz.AuditInfo {
	return authz.NewAuditInfo(authz.UserSubject("sub-1"), clock())
}
