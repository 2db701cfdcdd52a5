package core

import "btocore/pkg/domain"

// Operation names used for logs, metrics, traces and audit entries.
const (
	opCreateUser          = "create_user"
	opChangePassword      = "change_password"
	opCreateProject       = "create_project"
	opEditProject         = "edit_project"
	opDeleteProject       = "delete_project"
	opToggleVisibility    = "toggle_visibility"
	opRegisterOfficer     = "register_officer"
	opApproveRegistration = "approve_registration"
	opRejectRegistration  = "reject_registration"
	opApply               = "apply"
	opRequestWithdrawal   = "request_withdrawal"
	opApproveApplication  = "approve_application"
	opRejectApplication   = "reject_application"
	opApproveWithdrawal   = "approve_withdrawal"
	opRejectWithdrawal    = "reject_withdrawal"
	opBookFlat            = "book_flat"
	opSubmitEnquiry       = "submit_enquiry"
	opEditEnquiry         = "edit_enquiry"
	opDeleteEnquiry       = "delete_enquiry"
	opReplyEnquiry        = "reply_enquiry"
	opFlush               = "flush"
)

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

var operations = map[string]operationMeta{
	opCreateUser:          {domain.EntityUser, domain.ActionCreate},
	opChangePassword:      {domain.EntityUser, domain.ActionUpdate},
	opCreateProject:       {domain.EntityProject, domain.ActionCreate},
	opEditProject:         {domain.EntityProject, domain.ActionUpdate},
	opDeleteProject:       {domain.EntityProject, domain.ActionDelete},
	opToggleVisibility:    {domain.EntityProject, domain.ActionUpdate},
	opRegisterOfficer:     {domain.EntityRegistration, domain.ActionCreate},
	opApproveRegistration: {domain.EntityRegistration, domain.ActionUpdate},
	opRejectRegistration:  {domain.EntityRegistration, domain.ActionUpdate},
	opApply:               {domain.EntityApplication, domain.ActionCreate},
	opRequestWithdrawal:   {domain.EntityApplication, domain.ActionUpdate},
	opApproveApplication:  {domain.EntityApplication, domain.ActionUpdate},
	opRejectApplication:   {domain.EntityApplication, domain.ActionUpdate},
	opApproveWithdrawal:   {domain.EntityApplication, domain.ActionUpdate},
	opRejectWithdrawal:    {domain.EntityApplication, domain.ActionUpdate},
	opBookFlat:            {domain.EntityApplication, domain.ActionUpdate},
	opSubmitEnquiry:       {domain.EntityEnquiry, domain.ActionCreate},
	opEditEnquiry:         {domain.EntityEnquiry, domain.ActionUpdate},
	opDeleteEnquiry:       {domain.EntityEnquiry, domain.ActionDelete},
	opReplyEnquiry:        {domain.EntityEnquiry, domain.ActionUpdate},
}
