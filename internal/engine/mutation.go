package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracklog/tracklog/internal/changes"
	"github.com/tracklog/tracklog/internal/journal"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
)

// mutation carries the state of one pipeline run inside a transaction.
type mutation struct {
	e        *Engine
	ctx      context.Context
	tx       storage.Transaction
	actor    types.Actor
	snapshot *types.Issue // nil when creating
	proposed *types.Issue
	now      time.Time

	errs     []validation.FieldError
	warnings []string
	fault    error // storage failure hit while validating
}

func (e *Engine) newMutation(ctx context.Context, tx storage.Transaction, actor types.Actor, snapshot *types.Issue) *mutation {
	return &mutation{e: e, ctx: ctx, tx: tx, actor: actor, snapshot: snapshot, now: e.now()}
}

func (m *mutation) can(issue *types.Issue, c types.Capability) bool {
	return m.e.oracle.Can(m.ctx, m.actor, issue, c)
}

func (m *mutation) fail(field string, code validation.Code) {
	m.errs = append(m.errs, validation.NewFieldError(field, code))
}

func (m *mutation) warn(format string, args ...any) {
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

func (m *mutation) validationError() error {
	if m.fault != nil {
		return m.fault
	}
	if len(m.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: m.errs}
}

// update runs the pipeline for an existing issue.
func (m *mutation) update(upd Update) (*Result, error) {
	s := m.snapshot
	if !m.can(s, types.CapView) {
		return nil, unauthorized("%s cannot view issue #%d", m.actor, s.ID)
	}
	if upd.LockVersion != nil && *upd.LockVersion != s.LockVersion {
		return nil, fmt.Errorf("%w: issue #%d is at version %d, update was based on %d",
			ErrConcurrentModification, s.ID, s.LockVersion, *upd.LockVersion)
	}

	cs := upd.Changes.Clone()
	projectID, trackerID := m.target(cs, s.ProjectID, s.TrackerID)
	m.dropInapplicable(cs, projectID, trackerID)
	if err := m.authorize(cs, s, projectID, trackerID, upd); err != nil {
		return nil, err
	}
	m.filterStatus(cs, s.StatusID, trackerID)

	m.proposed = s.Clone()
	m.applyChanges(cs)
	if m.proposed.ProjectID != s.ProjectID || m.proposed.TrackerID != s.TrackerID {
		m.clearInapplicable(cs)
	}
	m.validate(cs)
	if err := m.validationError(); err != nil {
		return nil, err
	}

	m.stampClosedOn(s.StatusID)
	diff := changes.All(s, m.proposed)
	ancestors, err := m.rollup()
	if err != nil {
		return nil, err
	}
	attachments, err := m.saveAttachments(s.ID, upd.Attachments)
	if err != nil {
		return nil, err
	}

	res := &Result{Issue: s, Changes: diff}
	if j, ok := journal.Build(m.actor, upd.Notes, diff, attachments, m.now); ok {
		if err := m.tx.UpdateIssue(m.ctx, m.proposed); err != nil {
			return nil, err
		}
		j.IssueID = s.ID
		if err := m.tx.AddJournal(m.ctx, j); err != nil {
			return nil, err
		}
		res.Issue = m.proposed
		res.Journal = j
	}
	for _, a := range ancestors {
		if err := m.tx.UpdateIssue(m.ctx, a); err != nil {
			return nil, err
		}
	}
	if err := m.logTime(res.Issue, upd.TimeLog, &res.TimeEntry); err != nil {
		return nil, err
	}
	res.Warnings = m.warnings
	return res, nil
}

// create runs the pipeline for a new issue.
func (m *mutation) create(n NewIssue) (*Result, error) {
	cat := m.e.catalog
	project, ok := cat.Project(n.ProjectID)
	if !ok {
		m.fail(types.FieldProject, validation.CodeInclusion)
		return nil, m.validationError()
	}

	cs := n.Changes.Clone()
	// The project is fixed by NewIssue; a project_id key would be a move.
	delete(cs, types.FieldProject)

	var defaultTracker int64
	if len(project.TrackerIDs) > 0 {
		defaultTracker = project.TrackerIDs[0]
	}
	_, trackerID := m.target(cs, project.ID, defaultTracker)
	stub := &types.Issue{ProjectID: project.ID, TrackerID: trackerID}
	if !m.can(stub, types.CapAddIssues) {
		return nil, unauthorized("%s cannot add issues to project %s", m.actor, project.Identifier)
	}

	m.dropInapplicable(cs, project.ID, trackerID)
	if err := m.authorizeFields(cs, stub); err != nil {
		return nil, err
	}

	defaultStatus, err := cat.DefaultStatus(trackerID)
	if err != nil {
		m.fail(types.FieldStatus, validation.CodeBlank)
		return nil, m.validationError()
	}
	if !n.KeepStatus {
		m.filterNewStatus(cs, stub, defaultStatus)
	}

	m.proposed = &types.Issue{
		ProjectID:  project.ID,
		TrackerID:  trackerID,
		StatusID:   defaultStatus,
		AuthorID:   m.actor.ID,
		WatcherIDs: append([]int64(nil), n.WatcherIDs...),
	}
	if p, ok := cat.DefaultPriority(); ok {
		m.proposed.PriorityID = p.ID
	}
	for _, cf := range cat.ApplicableCustomFields(project.ID, trackerID) {
		if cf.Default != "" {
			if m.proposed.CustomValues == nil {
				m.proposed.CustomValues = make(map[int64]string)
			}
			m.proposed.CustomValues[cf.ID] = cf.Default
		}
	}
	m.applyChanges(cs)
	m.validate(cs)
	if err := m.validationError(); err != nil {
		return nil, err
	}
	m.stampClosedOn(0)

	if err := m.tx.CreateIssue(m.ctx, m.proposed); err != nil {
		return nil, err
	}
	ancestors, err := m.rollup()
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		if err := m.tx.UpdateIssue(m.ctx, a); err != nil {
			return nil, err
		}
	}
	attachments, err := m.saveAttachments(m.proposed.ID, n.Attachments)
	if err != nil {
		return nil, err
	}

	res := &Result{Issue: m.proposed}
	// Field values are recorded by the creation itself; only notes and
	// files produce a first journal.
	if j, ok := journal.Build(m.actor, n.Notes, nil, attachments, m.now); ok {
		j.IssueID = m.proposed.ID
		if err := m.tx.AddJournal(m.ctx, j); err != nil {
			return nil, err
		}
		res.Journal = j
	}
	if err := m.logTime(res.Issue, n.TimeLog, &res.TimeEntry); err != nil {
		return nil, err
	}
	res.Warnings = m.warnings
	return res, nil
}

// target returns the project and tracker the issue will have after cs,
// falling back to the given ones when cs does not name a valid id.
func (m *mutation) target(cs types.ChangeSet, projectID, trackerID int64) (int64, int64) {
	if v, ok := cs[types.FieldProject]; ok {
		if id, err := validation.ParseID(v); err == nil {
			projectID = id
		}
	}
	if v, ok := cs[types.FieldTracker]; ok {
		if id, err := validation.ParseID(v); err == nil {
			trackerID = id
		}
	}
	return projectID, trackerID
}

// dropInapplicable removes fields the tracker disables and custom fields
// not enabled for the project and tracker. Unknown keys are dropped with a
// warning.
func (m *mutation) dropInapplicable(cs types.ChangeSet, projectID, trackerID int64) {
	tracker, ok := m.e.catalog.Tracker(trackerID)
	for field := range cs {
		if id, isCF := types.ParseCustomFieldKey(field); isCF {
			if !m.e.catalog.CustomFieldApplies(projectID, trackerID, id) {
				m.e.log.Debug("skipping custom field", "field", field, "project", projectID, "tracker", trackerID)
				delete(cs, field)
			}
			continue
		}
		if !types.IsAttributeField(field) {
			m.warn("ignored unknown field %q", field)
			delete(cs, field)
			continue
		}
		if ok && !tracker.FieldEnabled(field) {
			m.e.log.Debug("skipping disabled field", "field", field, "tracker", trackerID)
			delete(cs, field)
		}
	}
}

// authorize checks the capabilities an update needs. A status change needs
// edit or change_status; which statuses are kept is up to filterStatus,
// which drops rather than rejects.
func (m *mutation) authorize(cs types.ChangeSet, s *types.Issue, projectID, trackerID int64, upd Update) error {
	if raw, ok := cs[types.FieldStatus]; ok {
		if id, err := validation.ParseID(raw); err != nil || id != s.StatusID {
			if !m.can(s, types.CapEdit) && !m.can(s, types.CapChangeStatus) {
				return unauthorized("%s cannot change the status of issue #%d", m.actor, s.ID)
			}
		}
	}
	edits := 0
	for field := range cs {
		if field != types.FieldStatus {
			edits++
		}
	}
	if edits == 0 {
		if strings.TrimSpace(upd.Notes) != "" || len(upd.Attachments) > 0 {
			if !m.can(s, types.CapAddNotes) && !m.can(s, types.CapEdit) {
				return unauthorized("%s cannot add notes to issue #%d", m.actor, s.ID)
			}
		}
		return nil
	}
	if !m.can(s, types.CapEdit) {
		return unauthorized("%s cannot edit issue #%d", m.actor, s.ID)
	}
	if err := m.authorizeFields(cs, s); err != nil {
		return err
	}
	if projectID != s.ProjectID {
		dest := &types.Issue{ProjectID: projectID, TrackerID: trackerID}
		if !m.can(dest, types.CapAddIssues) {
			return unauthorized("%s cannot add issues to project %d", m.actor, projectID)
		}
	}
	return nil
}

// authorizeFields checks the per-field capability of every non-status
// field, and manage_relations for the parent.
func (m *mutation) authorizeFields(cs types.ChangeSet, issue *types.Issue) error {
	for _, field := range cs.Fields() {
		if field == types.FieldStatus {
			continue
		}
		if !m.can(issue, types.FieldCapability(field)) {
			return unauthorized("%s cannot change %s on tracker %d", m.actor, field, issue.TrackerID)
		}
		if field == types.FieldParent && !m.can(issue, types.CapManageRelations) {
			return unauthorized("%s cannot manage relations of issue #%d", m.actor, issue.ID)
		}
	}
	return nil
}

// filterStatus drops a status change the actor may not make. The tracker's
// default status is always accepted.
func (m *mutation) filterStatus(cs types.ChangeSet, current, trackerID int64) {
	raw, ok := cs[types.FieldStatus]
	if !ok {
		return
	}
	id, err := validation.ParseID(raw)
	if err != nil || id == current {
		return
	}
	if def, err := m.e.catalog.DefaultStatus(trackerID); err == nil && def == id {
		return
	}
	if !m.can(m.snapshot, types.CapChangeStatus) {
		m.e.log.Debug("dropping unauthorized status change", "issue", m.snapshot.ID, "actor", m.actor.String(), "status", id)
		delete(cs, types.FieldStatus)
	}
}

// filterNewStatus keeps a non-default initial status only when the actor
// may change status and the workflow leads there from the default.
// Otherwise the issue starts in the default status.
func (m *mutation) filterNewStatus(cs types.ChangeSet, stub *types.Issue, defaultStatus int64) {
	raw, ok := cs[types.FieldStatus]
	if !ok {
		return
	}
	id, err := validation.ParseID(raw)
	if err != nil || id == defaultStatus {
		return
	}
	allowed := m.can(stub, types.CapChangeStatus) &&
		(m.can(stub, types.CapBypassWorkflow) || m.transitionAllowed(stub, defaultStatus, id))
	if !allowed {
		delete(cs, types.FieldStatus)
	}
}

func (m *mutation) transitionAllowed(issue *types.Issue, from, to int64) bool {
	roles := m.e.catalog.RolesFor(m.actor, issue.ProjectID)
	for _, id := range m.e.catalog.AllowedTransitions(issue.TrackerID, roles, from) {
		if id == to {
			return true
		}
	}
	return false
}

// stampClosedOn sets ClosedOn when entering a closed status and clears it
// when leaving one.
func (m *mutation) stampClosedOn(previousStatus int64) {
	wasClosed := previousStatus != 0 && m.e.catalog.IsClosed(previousStatus)
	isClosed := m.e.catalog.IsClosed(m.proposed.StatusID)
	switch {
	case isClosed && !wasClosed:
		t := m.now
		m.proposed.ClosedOn = &t
	case !isClosed && wasClosed:
		m.proposed.ClosedOn = nil
	}
}

// saveAttachments stores metadata for files with a name and warns about
// the others.
func (m *mutation) saveAttachments(issueID int64, files []*types.Attachment) ([]*types.Attachment, error) {
	var saved []*types.Attachment
	unsaved := 0
	for _, f := range files {
		if f == nil || strings.TrimSpace(f.Filename) == "" {
			unsaved++
			continue
		}
		a := *f
		a.IssueID = issueID
		a.AuthorID = m.actor.ID
		if err := m.tx.AddAttachment(m.ctx, &a); err != nil {
			return nil, err
		}
		saved = append(saved, &a)
	}
	if unsaved > 0 {
		m.warn("%d file(s) could not be saved.", unsaved)
	}
	return saved, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: #%d", ErrNotFound, id)
}
