// Package workflow loads the reference catalog (statuses, trackers,
// projects, custom fields, roles, members) and answers workflow and
// permission questions against it.
package workflow

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/viper"

	"github.com/tracklog/tracklog/internal/types"
)

// DefaultYAML is the starter catalog written by `tl init`.
//
//go:embed default.yaml
var DefaultYAML []byte

// Catalog is the read-only reference data of a tracklog installation.
type Catalog struct {
	Statuses     []*types.Status
	Priorities   []*types.Priority
	Activities   []*types.Activity
	Trackers     []*types.Tracker
	CustomFields []*types.CustomField
	Projects     []*types.Project
	Users        []*types.User
	Roles        []*types.Role
	Members      []*types.Member
	Transitions  []types.Transition

	statuses     map[int64]*types.Status
	statusOrder  map[int64]int
	priorities   map[int64]*types.Priority
	activities   map[int64]*types.Activity
	trackers     map[int64]*types.Tracker
	customFields map[int64]*types.CustomField
	projects     map[int64]*types.Project
	versions     map[int64]*types.Version
	categories   map[int64]*types.Category
	users        map[int64]*types.User
	roles        map[int64]*types.Role
}

type roleSpec struct {
	ID           int64    `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Builtin      string   `mapstructure:"builtin"`
	Permissions  []string `mapstructure:"permissions"`
	LockedFields []struct {
		Tracker int64    `mapstructure:"tracker"`
		Fields  []string `mapstructure:"fields"`
	} `mapstructure:"locked_fields"`
}

type workflowSpec struct {
	Role     int64   `mapstructure:"role"`
	Trackers []int64 `mapstructure:"trackers"`
	From     int64   `mapstructure:"from"`
	To       []int64 `mapstructure:"to"`
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("workflow catalog %s: %w", path, err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read workflow catalog: %w", err)
	}
	return fromViper(v)
}

// Parse reads a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse workflow catalog: %w", err)
	}
	return fromViper(v)
}

// Default returns the embedded starter catalog.
func Default() (*Catalog, error) {
	return Parse(DefaultYAML)
}

func fromViper(v *viper.Viper) (*Catalog, error) {
	c := &Catalog{}
	sections := []struct {
		key string
		out any
	}{
		{"statuses", &c.Statuses},
		{"priorities", &c.Priorities},
		{"activities", &c.Activities},
		{"trackers", &c.Trackers},
		{"custom_fields", &c.CustomFields},
		{"projects", &c.Projects},
		{"users", &c.Users},
		{"members", &c.Members},
	}
	for _, s := range sections {
		if err := v.UnmarshalKey(s.key, s.out); err != nil {
			return nil, fmt.Errorf("workflow catalog: %s: %w", s.key, err)
		}
	}

	var roles []roleSpec
	if err := v.UnmarshalKey("roles", &roles); err != nil {
		return nil, fmt.Errorf("workflow catalog: roles: %w", err)
	}
	for _, r := range roles {
		role := &types.Role{
			ID:           r.ID,
			Name:         r.Name,
			Builtin:      types.BuiltinRole(r.Builtin),
			LockedFields: make(map[int64][]string),
		}
		for _, p := range r.Permissions {
			role.Permissions = append(role.Permissions, types.Capability(p))
		}
		for _, lf := range r.LockedFields {
			role.LockedFields[lf.Tracker] = append(role.LockedFields[lf.Tracker], lf.Fields...)
		}
		c.Roles = append(c.Roles, role)
	}

	var flows []workflowSpec
	if err := v.UnmarshalKey("workflows", &flows); err != nil {
		return nil, fmt.Errorf("workflow catalog: workflows: %w", err)
	}
	for _, w := range flows {
		for _, tracker := range w.Trackers {
			for _, to := range w.To {
				c.Transitions = append(c.Transitions, types.Transition{
					TrackerID: tracker,
					RoleID:    w.Role,
					From:      w.From,
					To:        to,
				})
			}
		}
	}

	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// index builds lookup maps and checks referential integrity.
func (c *Catalog) index() error {
	c.statuses = make(map[int64]*types.Status)
	c.statusOrder = make(map[int64]int)
	c.priorities = make(map[int64]*types.Priority)
	c.activities = make(map[int64]*types.Activity)
	c.trackers = make(map[int64]*types.Tracker)
	c.customFields = make(map[int64]*types.CustomField)
	c.projects = make(map[int64]*types.Project)
	c.versions = make(map[int64]*types.Version)
	c.categories = make(map[int64]*types.Category)
	c.users = make(map[int64]*types.User)
	c.roles = make(map[int64]*types.Role)

	if len(c.Statuses) == 0 {
		return fmt.Errorf("workflow catalog: no statuses defined")
	}
	for i, s := range c.Statuses {
		if _, dup := c.statuses[s.ID]; dup {
			return fmt.Errorf("workflow catalog: duplicate status id %d", s.ID)
		}
		c.statuses[s.ID] = s
		c.statusOrder[s.ID] = i
	}
	for _, p := range c.Priorities {
		c.priorities[p.ID] = p
	}
	for _, a := range c.Activities {
		c.activities[a.ID] = a
	}
	for _, cf := range c.CustomFields {
		if cf.Format == "" {
			cf.Format = types.FormatString
		}
		if !cf.Format.IsValid() {
			return fmt.Errorf("workflow catalog: custom field %d: unknown format %q", cf.ID, cf.Format)
		}
		c.customFields[cf.ID] = cf
	}
	for _, t := range c.Trackers {
		if t.DefaultStatusID != 0 {
			if _, ok := c.statuses[t.DefaultStatusID]; !ok {
				return fmt.Errorf("workflow catalog: tracker %d: unknown default status %d", t.ID, t.DefaultStatusID)
			}
		}
		for _, id := range t.CustomFieldIDs {
			if _, ok := c.customFields[id]; !ok {
				return fmt.Errorf("workflow catalog: tracker %d: unknown custom field %d", t.ID, id)
			}
		}
		c.trackers[t.ID] = t
	}
	for _, p := range c.Projects {
		c.projects[p.ID] = p
		for _, v := range p.Versions {
			if !v.Status.IsValid() {
				return fmt.Errorf("workflow catalog: version %d: unknown status %q", v.ID, v.Status)
			}
			v.ProjectID = p.ID
			c.versions[v.ID] = v
		}
		for _, cat := range p.Categories {
			cat.ProjectID = p.ID
			c.categories[cat.ID] = cat
		}
		for _, id := range p.TrackerIDs {
			if _, ok := c.trackers[id]; !ok {
				return fmt.Errorf("workflow catalog: project %d: unknown tracker %d", p.ID, id)
			}
		}
	}
	for _, p := range c.Projects {
		if p.ParentID != nil {
			if _, ok := c.projects[*p.ParentID]; !ok {
				return fmt.Errorf("workflow catalog: project %d: unknown parent %d", p.ID, *p.ParentID)
			}
		}
	}
	for _, u := range c.Users {
		c.users[u.ID] = u
	}
	for _, r := range c.Roles {
		for _, p := range r.Permissions {
			if !p.IsValid() {
				return fmt.Errorf("workflow catalog: role %d: unknown permission %q", r.ID, p)
			}
		}
		c.roles[r.ID] = r
	}
	for _, m := range c.Members {
		for _, id := range m.RoleIDs {
			if _, ok := c.roles[id]; !ok {
				return fmt.Errorf("workflow catalog: member %d of project %d: unknown role %d", m.UserID, m.ProjectID, id)
			}
		}
	}
	for _, t := range c.Transitions {
		if _, ok := c.statuses[t.From]; !ok {
			return fmt.Errorf("workflow catalog: %s: unknown status %d", t, t.From)
		}
		if _, ok := c.statuses[t.To]; !ok {
			return fmt.Errorf("workflow catalog: %s: unknown status %d", t, t.To)
		}
	}
	return nil
}

// Status looks up a status by id.
func (c *Catalog) Status(id int64) (*types.Status, bool) {
	s, ok := c.statuses[id]
	return s, ok
}

// Priority looks up a priority by id.
func (c *Catalog) Priority(id int64) (*types.Priority, bool) {
	p, ok := c.priorities[id]
	return p, ok
}

// DefaultPriority returns the priority flagged default, or the first one.
func (c *Catalog) DefaultPriority() (*types.Priority, bool) {
	for _, p := range c.Priorities {
		if p.IsDefault {
			return p, true
		}
	}
	if len(c.Priorities) > 0 {
		return c.Priorities[0], true
	}
	return nil, false
}

// Activity looks up a time tracking activity by id.
func (c *Catalog) Activity(id int64) (*types.Activity, bool) {
	a, ok := c.activities[id]
	return a, ok
}

// DefaultActivity returns the activity flagged default.
func (c *Catalog) DefaultActivity() (*types.Activity, bool) {
	for _, a := range c.Activities {
		if a.IsDefault {
			return a, true
		}
	}
	return nil, false
}

// Tracker looks up a tracker by id.
func (c *Catalog) Tracker(id int64) (*types.Tracker, bool) {
	t, ok := c.trackers[id]
	return t, ok
}

// Project looks up a project by id.
func (c *Catalog) Project(id int64) (*types.Project, bool) {
	p, ok := c.projects[id]
	return p, ok
}

// ProjectByIdentifier looks up a project by its identifier.
func (c *Catalog) ProjectByIdentifier(identifier string) (*types.Project, bool) {
	for _, p := range c.Projects {
		if p.Identifier == identifier {
			return p, true
		}
	}
	return nil, false
}

// Version looks up a version by id.
func (c *Catalog) Version(id int64) (*types.Version, bool) {
	v, ok := c.versions[id]
	return v, ok
}

// Category looks up a category by id.
func (c *Catalog) Category(id int64) (*types.Category, bool) {
	cat, ok := c.categories[id]
	return cat, ok
}

// CustomField looks up a custom field by id.
func (c *Catalog) CustomField(id int64) (*types.CustomField, bool) {
	cf, ok := c.customFields[id]
	return cf, ok
}

// User looks up a user by id.
func (c *Catalog) User(id int64) (*types.User, bool) {
	u, ok := c.users[id]
	return u, ok
}

// UserByLogin looks up a user by login name.
func (c *Catalog) UserByLogin(login string) (*types.User, bool) {
	for _, u := range c.Users {
		if u.Login == login {
			return u, true
		}
	}
	return nil, false
}

// Actor resolves a login to an actor. Unknown or empty logins are anonymous.
func (c *Catalog) Actor(login string) types.Actor {
	if u, ok := c.UserByLogin(login); ok {
		return types.Actor{ID: u.ID, Login: u.Login, Admin: u.Admin}
	}
	return types.Anonymous()
}

// rootOf returns the root project id of the tree containing projectID.
func (c *Catalog) rootOf(projectID int64) int64 {
	seen := make(map[int64]bool)
	id := projectID
	for {
		p, ok := c.projects[id]
		if !ok || p.ParentID == nil || seen[id] {
			return id
		}
		seen[id] = true
		id = *p.ParentID
	}
}

// VersionVisible reports whether issues of projectID may target the
// version: any version of any project in the same project tree qualifies.
func (c *Catalog) VersionVisible(projectID, versionID int64) bool {
	v, ok := c.versions[versionID]
	if !ok {
		return false
	}
	return c.rootOf(v.ProjectID) == c.rootOf(projectID)
}

// SharedVersions lists the versions visible from projectID.
func (c *Catalog) SharedVersions(projectID int64) []*types.Version {
	var out []*types.Version
	root := c.rootOf(projectID)
	for _, p := range c.Projects {
		if c.rootOf(p.ID) != root {
			continue
		}
		out = append(out, p.Versions...)
	}
	return out
}

// CategoryInProject reports whether the category belongs to the project.
func (c *Catalog) CategoryInProject(projectID, categoryID int64) bool {
	cat, ok := c.categories[categoryID]
	return ok && cat.ProjectID == projectID
}

// Assignable reports whether the user is a member of the project.
func (c *Catalog) Assignable(projectID, userID int64) bool {
	for _, m := range c.Members {
		if m.ProjectID == projectID && m.UserID == userID {
			return true
		}
	}
	return false
}

// CustomFieldApplies reports whether a custom field is enabled for issues
// of the given project and tracker.
func (c *Catalog) CustomFieldApplies(projectID, trackerID, fieldID int64) bool {
	cf, ok := c.customFields[fieldID]
	if !ok {
		return false
	}
	t, ok := c.trackers[trackerID]
	if !ok || !t.HasCustomField(fieldID) {
		return false
	}
	if cf.ForAll {
		return true
	}
	p, ok := c.projects[projectID]
	if !ok {
		return false
	}
	for _, id := range p.CustomFieldIDs {
		if id == fieldID {
			return true
		}
	}
	return false
}

// ApplicableCustomFields lists the custom fields enabled for the project
// and tracker, ordered by id.
func (c *Catalog) ApplicableCustomFields(projectID, trackerID int64) []*types.CustomField {
	var out []*types.CustomField
	for _, cf := range c.CustomFields {
		if c.CustomFieldApplies(projectID, trackerID, cf.ID) {
			out = append(out, cf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RolesFor returns the ids of the roles the actor holds in the project.
// Administrators hold every membership role. Non-members get the builtin
// non-member role, anonymous actors the builtin anonymous role.
func (c *Catalog) RolesFor(actor types.Actor, projectID int64) []int64 {
	if actor.Admin {
		var ids []int64
		for _, r := range c.Roles {
			if r.Builtin == types.BuiltinNone {
				ids = append(ids, r.ID)
			}
		}
		return ids
	}
	if actor.IsAnonymous() {
		return c.builtinRoles(types.BuiltinAnonymous)
	}
	var ids []int64
	for _, m := range c.Members {
		if m.ProjectID == projectID && m.UserID == actor.ID {
			ids = append(ids, m.RoleIDs...)
		}
	}
	if len(ids) == 0 {
		return c.builtinRoles(types.BuiltinNonMember)
	}
	return ids
}

func (c *Catalog) builtinRoles(kind types.BuiltinRole) []int64 {
	var ids []int64
	for _, r := range c.Roles {
		if r.Builtin == kind {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Role looks up a role by id.
func (c *Catalog) Role(id int64) (*types.Role, bool) {
	r, ok := c.roles[id]
	return r, ok
}
