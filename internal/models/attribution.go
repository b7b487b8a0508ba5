package models

import (
	"fmt"
	"strings"
)

// AttributionKind says where an entry's hours are counted.
type AttributionKind int

const (
	AttributionNone AttributionKind = iota
	AttributionGroup
	AttributionSupervisor
)

func (k AttributionKind) String() string {
	switch k {
	case AttributionNone:
		return "none"
	case AttributionGroup:
		return "group"
	case AttributionSupervisor:
		return "supervisor"
	default:
		return "unknown"
	}
}

// Attribution is exactly one of: nothing, a group, or a named supervisor.
// The zero value is AttributionNone.
type Attribution struct {
	kind         AttributionKind
	groupID      int64
	supervisorID string
}

// NoAttribution counts an entry toward its owner's total only.
func NoAttribution() Attribution {
	return Attribution{}
}

// GroupAttribution counts an entry toward the owner's membership in groupID.
func GroupAttribution(groupID int64) Attribution {
	return Attribution{kind: AttributionGroup, groupID: groupID}
}

// SupervisorAttribution marks an entry as supervised by the named member.
func SupervisorAttribution(memberID string) Attribution {
	return Attribution{kind: AttributionSupervisor, supervisorID: memberID}
}

// NormalizeAttribution converts the two-nullable-fields form callers submit.
// Both set or neither set collapse to NoAttribution.
func NormalizeAttribution(groupID *int64, supervisorID *string) Attribution {
	hasGroup := groupID != nil
	hasSupervisor := supervisorID != nil && strings.TrimSpace(*supervisorID) != ""
	switch {
	case hasGroup && !hasSupervisor:
		return GroupAttribution(*groupID)
	case hasSupervisor && !hasGroup:
		return SupervisorAttribution(strings.TrimSpace(*supervisorID))
	default:
		return NoAttribution()
	}
}

func (a Attribution) Kind() AttributionKind { return a.kind }

// GroupID returns the attributed group, if any.
func (a Attribution) GroupID() (int64, bool) {
	return a.groupID, a.kind == AttributionGroup
}

// SupervisorID returns the named supervisor, if any.
func (a Attribution) SupervisorID() (string, bool) {
	return a.supervisorID, a.kind == AttributionSupervisor
}

func (a Attribution) String() string {
	switch a.kind {
	case AttributionGroup:
		return fmt.Sprintf("group:%d", a.groupID)
	case AttributionSupervisor:
		return "supervisor:" + a.supervisorID
	default:
		return a.kind.String()
	}
}
