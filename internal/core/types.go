package core

import "btxclinic/pkg/domain"

type (
	EntityType = domain.EntityType
	Action     = domain.Action
	Change     = domain.Change
	Result     = domain.Result
	Violation  = domain.Violation
	Rule       = domain.Rule
	RuleView   = domain.RuleView
	Document   = domain.Document
	StateStore = domain.StateStore
)

const (
	EntityPatient     = domain.EntityPatient
	EntityAppointment = domain.EntityAppointment
	EntityEntry       = domain.EntityEntry
	EntityRx          = domain.EntityRx
	EntitySettings    = domain.EntitySettings
	EntityDraft       = domain.EntityDraft

	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
