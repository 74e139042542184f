package types

import "strings"

// Actor is the user performing a mutation. It is passed explicitly to every
// operation.
type Actor struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Admin bool   `json:"admin,omitempty"`
}

// Anonymous returns the actor used for unauthenticated callers.
func Anonymous() Actor {
	return Actor{Login: "anonymous"}
}

// IsAnonymous reports whether the actor is unauthenticated.
func (a Actor) IsAnonymous() bool {
	return a.ID == 0
}

func (a Actor) String() string {
	if a.Login != "" {
		return a.Login
	}
	return "anonymous"
}

// Capability names an action the permission oracle can grant.
type Capability string

// Capabilities
const (
	CapView            Capability = "view"
	CapEdit            Capability = "edit"
	CapChangeStatus    Capability = "change_status"
	CapManageRelations Capability = "manage_relations"
	CapLogTime         Capability = "log_time"
	CapDelete          Capability = "delete"
	CapAddNotes        Capability = "add_notes"
	CapAddIssues       Capability = "add_issues"
	CapBypassWorkflow  Capability = "bypass_workflow"
)

const fieldCapabilityPrefix = "edit."

// FieldCapability is the capability required to change one attribute.
// Roles hold it implicitly with CapEdit unless they lock the field for the
// issue's tracker.
func FieldCapability(field string) Capability {
	return Capability(fieldCapabilityPrefix + field)
}

// FieldOf returns the attribute a per-field capability refers to.
func (c Capability) FieldOf() (string, bool) {
	s := string(c)
	if !strings.HasPrefix(s, fieldCapabilityPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, fieldCapabilityPrefix), true
}

// IsValid checks if the capability is known
func (c Capability) IsValid() bool {
	switch c {
	case CapView, CapEdit, CapChangeStatus, CapManageRelations, CapLogTime,
		CapDelete, CapAddNotes, CapAddIssues, CapBypassWorkflow:
		return true
	}
	_, ok := c.FieldOf()
	return ok
}
