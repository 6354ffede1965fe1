package core

import (
	"context"
	"fmt"

	"btxclinic/pkg/domain"
)

// NewPatientReferenceRule returns the blocking rule requiring every created or
// updated appointment, entry and rx row to reference an existing patient.
func NewPatientReferenceRule() domain.Rule {
	return patientReferenceRule{}
}

type patientReferenceRule struct{}

func (patientReferenceRule) Name() string { return "patient_reference" }

func (r patientReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		id, patientID, ok := referencedPatient(change.After)
		if !ok {
			continue
		}
		if _, exists := view.FindPatient(patientID); exists {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s references unknown patient %q", change.Entity, id, patientID),
			Entity:   change.Entity,
			EntityID: id,
		})
	}
	return res, nil
}

func referencedPatient(v any) (id, patientID string, ok bool) {
	switch row := v.(type) {
	case domain.Appointment:
		return row.ID, row.PatientID, true
	case domain.Entry:
		return row.ID, row.PatientID, true
	case domain.RxMeta:
		return row.ID, row.PatientID, true
	}
	return "", "", false
}
