package authz

import "time"

// Subject identifies who is attempting an action: a human operator
// (ID is a UserId) or the platform itself acting unattended (a job
// runner transitioning a facility to overdue has no human behind it).
type Subject struct {
	ID     string
	System bool
}

// SystemSubject is the Subject recorded against events the platform
// raises on its own, outside any request from a human operator.
var SystemSubject = Subject{System: true}

func UserSubject(id string) Subject {
	return Subject{ID: id}
}

// AuditInfo is attached to every event a domain method records that
// resulted from an enforced permission check, so the event log carries
// who (or what) caused it without a separate audit table.
type AuditInfo struct {
	SubjectID string
	At        time.Time
}

func NewAuditInfo(subject Subject, at time.Time) AuditInfo {
	return AuditInfo{SubjectID: subject.ID, At: at}
}
