// Package apperr provides the domain error taxonomy shared by the ledger components.
package apperr

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Membership state errors
	CodeNotMember     Code = "NOT_MEMBER"
	CodeAlreadyMember Code = "ALREADY_MEMBER"
	CodeNotAMember    Code = "NOT_A_MEMBER"
	CodeGroupLocked   Code = "GROUP_LOCKED"

	// Input errors
	CodeInvalidAttribution Code = "INVALID_ATTRIBUTION"
	CodeInvalidTime        Code = "INVALID_TIME"
	CodeInvalidDate        Code = "INVALID_DATE"
	CodeInvalidDescription Code = "INVALID_DESCRIPTION"
	CodeInvalidStatus      Code = "INVALID_STATUS"
	CodeInvalidGroupName   Code = "INVALID_GROUP_NAME"
	CodeGroupNameTaken     Code = "GROUP_NAME_TAKEN"
	CodeInvalidEnrollment  Code = "INVALID_ENROLLMENT"

	// Caller bugs
	CodeUntrackedTotal Code = "UNTRACKED_TOTAL"
)

// Recoverable reports whether the code describes a user-facing rejection
// rather than an infrastructure failure.
func (c Code) Recoverable() bool {
	switch c {
	case CodeUnknown, "":
		return false
	default:
		return true
	}
}
