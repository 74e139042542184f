package workflow

import (
	"context"

	"github.com/tracklog/tracklog/internal/types"
)

// Oracle answers permission questions from role grants in the catalog.
type Oracle struct {
	catalog *Catalog
}

// NewOracle returns an oracle backed by the catalog.
func NewOracle(c *Catalog) *Oracle {
	return &Oracle{catalog: c}
}

// Can reports whether actor holds capability on issue. Only the issue's
// project and tracker are consulted, so callers may pass a stub for
// project-level checks such as creating an issue.
//
// Administrators hold every capability. A per-field capability
// (types.FieldCapability) is granted by any role that grants edit without
// locking that field for the issue's tracker.
func (o *Oracle) Can(_ context.Context, actor types.Actor, issue *types.Issue, capability types.Capability) bool {
	if actor.Admin {
		return true
	}
	if issue == nil {
		return false
	}
	field, perField := capability.FieldOf()
	for _, id := range o.catalog.RolesFor(actor, issue.ProjectID) {
		role, ok := o.catalog.Role(id)
		if !ok {
			continue
		}
		if !perField {
			if role.Allows(capability) {
				return true
			}
			continue
		}
		if role.Allows(types.CapEdit) && !role.FieldLocked(issue.TrackerID, field) {
			return true
		}
	}
	return false
}
