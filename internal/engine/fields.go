package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/tracklog/tracklog/internal/timeparsing"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
)

const maxSubjectLength = 255

// applyChanges parses every field of cs onto m.proposed. Parse failures
// are collected as field errors; the remaining fields are still applied so
// all errors surface together.
func (m *mutation) applyChanges(cs types.ChangeSet) {
	cat := m.e.catalog
	p := m.proposed
	for _, field := range cs.Fields() {
		raw := cs[field]
		if id, ok := types.ParseCustomFieldKey(field); ok {
			m.applyCustomValue(id, raw)
			continue
		}
		switch field {
		case types.FieldSubject:
			p.Subject = strings.TrimSpace(raw)
		case types.FieldDescription:
			p.Description = raw
		case types.FieldProject:
			id, err := validation.ParseID(raw)
			if _, ok := cat.Project(id); err != nil || !ok {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.ProjectID = id
		case types.FieldTracker:
			id, err := validation.ParseID(raw)
			if _, ok := cat.Tracker(id); err != nil || !ok {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.TrackerID = id
		case types.FieldStatus:
			id, err := validation.ParseID(raw)
			if _, ok := cat.Status(id); err != nil || !ok {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.StatusID = id
		case types.FieldPriority:
			id, err := validation.ParseID(raw)
			if _, ok := cat.Priority(id); err != nil || !ok {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.PriorityID = id
		case types.FieldAssignees:
			ids, err := validation.ParseIDList(raw)
			if err != nil {
				m.fail(field, validation.CodeInvalid)
				continue
			}
			p.AssigneeIDs = ids
		case types.FieldCategory:
			id, err := validation.ParseOptionalID(raw)
			if err != nil {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.CategoryID = id
		case types.FieldFixedVersion:
			id, err := validation.ParseOptionalID(raw)
			if err != nil {
				m.fail(field, validation.CodeInclusion)
				continue
			}
			p.FixedVersionID = id
		case types.FieldStartDate:
			p.StartDate = m.parseDate(field, raw, p.StartDate)
		case types.FieldDueDate:
			p.DueDate = m.parseDate(field, raw, p.DueDate)
		case types.FieldEstimatedHours:
			if strings.TrimSpace(raw) == "" || raw == validation.NoneValue {
				p.EstimatedHours = nil
				continue
			}
			h, err := validation.ParseHours(raw)
			switch {
			case err != nil:
				m.fail(field, validation.CodeNotANumber)
			case h.IsNegative():
				m.fail(field, validation.CodeInvalid)
			default:
				p.EstimatedHours = &h
			}
		case types.FieldParent:
			id, err := validation.ParseOptionalID(raw)
			if err != nil {
				m.fail(field, validation.CodeInvalid)
				continue
			}
			p.ParentID = id
		case types.FieldBillable:
			b, err := validation.ParseBool(raw)
			if err != nil {
				m.fail(field, validation.CodeInvalid)
				continue
			}
			p.Billable = b
		}
	}
}

func (m *mutation) parseDate(field, raw string, current *types.Date) *types.Date {
	if strings.TrimSpace(raw) == "" || raw == validation.NoneValue {
		return nil
	}
	d, err := timeparsing.ParseDate(raw, m.now)
	if err != nil {
		m.fail(field, validation.CodeNotADate)
		return current
	}
	return &d
}

func (m *mutation) applyCustomValue(id int64, raw string) {
	cf, ok := m.e.catalog.CustomField(id)
	if !ok {
		return
	}
	value := strings.TrimSpace(raw)
	if value == validation.NoneValue {
		value = ""
	}
	if code, ok := validation.CheckCustomValue(cf, value); !ok {
		m.fail(cf.Key(), code)
		return
	}
	value = validation.NormalizeCustomValue(cf, value)
	if value == "" {
		delete(m.proposed.CustomValues, id)
		return
	}
	if m.proposed.CustomValues == nil {
		m.proposed.CustomValues = make(map[int64]string)
	}
	m.proposed.CustomValues[id] = value
}

// clearInapplicable resets values that do not exist in the issue's new
// project or tracker. Values given explicitly in cs are left for validate
// to judge.
func (m *mutation) clearInapplicable(cs types.ChangeSet) {
	cat := m.e.catalog
	p := m.proposed
	if p.CategoryID != nil && !cs.Has(types.FieldCategory) && !cat.CategoryInProject(p.ProjectID, *p.CategoryID) {
		p.CategoryID = nil
	}
	if p.FixedVersionID != nil && !cs.Has(types.FieldFixedVersion) && !cat.VersionVisible(p.ProjectID, *p.FixedVersionID) {
		p.FixedVersionID = nil
	}
	if len(p.AssigneeIDs) > 0 && !cs.Has(types.FieldAssignees) {
		kept := p.AssigneeIDs[:0:0]
		for _, id := range p.AssigneeIDs {
			if cat.Assignable(p.ProjectID, id) {
				kept = append(kept, id)
			}
		}
		p.AssigneeIDs = kept
	}
	for id := range p.CustomValues {
		if !cat.CustomFieldApplies(p.ProjectID, p.TrackerID, id) {
			delete(p.CustomValues, id)
		}
	}
	if t, ok := cat.Tracker(p.TrackerID); ok {
		for _, field := range types.AttributeFields {
			if !t.FieldEnabled(field) && !cs.Has(field) {
				clearField(p, field)
			}
		}
	}
}

func clearField(p *types.Issue, field string) {
	switch field {
	case types.FieldDescription:
		p.Description = ""
	case types.FieldAssignees:
		p.AssigneeIDs = nil
	case types.FieldCategory:
		p.CategoryID = nil
	case types.FieldFixedVersion:
		p.FixedVersionID = nil
	case types.FieldStartDate:
		p.StartDate = nil
	case types.FieldDueDate:
		p.DueDate = nil
	case types.FieldEstimatedHours:
		p.EstimatedHours = nil
	case types.FieldParent:
		p.ParentID = nil
	case types.FieldBillable:
		p.Billable = false
	}
}

// validate checks the proposed issue as a whole. References are checked
// against the target project so a move revalidates everything.
func (m *mutation) validate(cs types.ChangeSet) {
	cat := m.e.catalog
	p := m.proposed
	s := m.snapshot

	switch n := utf8.RuneCountInString(p.Subject); {
	case n == 0:
		m.fail(types.FieldSubject, validation.CodeBlank)
	case n > maxSubjectLength:
		m.fail(types.FieldSubject, validation.CodeTooLong)
	}

	project, ok := cat.Project(p.ProjectID)
	if ok && !project.HasTracker(p.TrackerID) {
		m.fail(types.FieldTracker, validation.CodeInclusion)
	}
	for _, uid := range p.AssigneeIDs {
		if !cat.Assignable(p.ProjectID, uid) {
			m.fail(types.FieldAssignees, validation.CodeInvalid)
			break
		}
	}
	if p.CategoryID != nil && !cat.CategoryInProject(p.ProjectID, *p.CategoryID) {
		m.fail(types.FieldCategory, validation.CodeInclusion)
	}
	if p.FixedVersionID != nil && m.versionChanged() {
		v, ok := cat.Version(*p.FixedVersionID)
		if !ok || !v.IsOpen() || !cat.VersionVisible(p.ProjectID, v.ID) {
			m.fail(types.FieldFixedVersion, validation.CodeInclusion)
		}
	}
	if p.StartDate != nil && p.DueDate != nil && p.DueDate.Before(*p.StartDate) {
		m.fail(types.FieldDueDate, validation.CodeGreaterThanStartDate)
	}
	if cs.Has(types.FieldParent) {
		m.validateParent()
	}
	for _, cf := range cat.ApplicableCustomFields(p.ProjectID, p.TrackerID) {
		if cf.Required && p.CustomValue(cf.ID) == "" {
			m.fail(cf.Key(), validation.CodeBlank)
		}
	}

	if s != nil && p.StatusID != s.StatusID {
		m.validateTransition(s.StatusID, p.StatusID)
	}
}

func (m *mutation) versionChanged() bool {
	if m.snapshot == nil || m.snapshot.FixedVersionID == nil {
		return true
	}
	return *m.snapshot.FixedVersionID != *m.proposed.FixedVersionID
}

// validateParent rejects a missing parent, the issue itself and any of its
// descendants.
func (m *mutation) validateParent() {
	p := m.proposed
	if p.ParentID == nil {
		return
	}
	parentID := *p.ParentID
	if parentID == p.ID {
		m.fail(types.FieldParent, validation.CodeInvalid)
		return
	}
	seen := map[int64]bool{}
	for id := parentID; id != 0; {
		if seen[id] {
			break
		}
		seen[id] = true
		issue, err := m.tx.GetIssue(m.ctx, id)
		if err != nil {
			if !isNotFound(err) {
				m.fault = err
			}
			m.fail(types.FieldParent, validation.CodeInvalid)
			return
		}
		if p.ID != 0 && issue.ParentID != nil && *issue.ParentID == p.ID {
			m.fail(types.FieldParent, validation.CodeInvalid)
			return
		}
		if issue.ParentID == nil {
			break
		}
		id = *issue.ParentID
	}
}

// validateTransition checks the workflow graph for a status change. The
// tracker's default status and bypass_workflow holders are exempt.
func (m *mutation) validateTransition(from, to int64) {
	p := m.proposed
	if def, err := m.e.catalog.DefaultStatus(p.TrackerID); err == nil && def == to {
		return
	}
	if m.can(p, types.CapBypassWorkflow) {
		return
	}
	if !m.transitionAllowed(p, from, to) {
		m.fail(types.FieldStatus, validation.CodeInclusion)
	}
}
