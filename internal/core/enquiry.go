package core

import (
	"context"
	"strconv"
	"strings"

	"btocore/pkg/domain"
)

// SubmitEnquiry files a question about a project the applicant can view.
func (s *Service) SubmitEnquiry(ctx context.Context, applicant User, projectName, text string) (Enquiry, error) {
	today := s.Today()
	var created Enquiry
	_, err := s.run(ctx, opSubmitEnquiry, applicant, projectName, func(tx domain.Transaction) error {
		if !applicant.Role.CanApply() {
			return domain.Rejected(opSubmitEnquiry, domain.ErrNotAuthorized, "only applicants may submit enquiries")
		}
		view := tx.Snapshot()
		project, err := findProject(view, projectName)
		if err != nil {
			return err
		}
		if !s.viewable(view, applicant, project, today) {
			return domain.Rejected(opSubmitEnquiry, domain.ErrNotAuthorized, "project %s is not available to %s", projectName, applicant.NRIC)
		}
		created, err = tx.CreateEnquiry(domain.Enquiry{
			ApplicantNRIC: applicant.NRIC,
			ProjectName:   projectName,
			Text:          strings.TrimSpace(text),
		})
		return err
	})
	return created, err
}

// EditEnquiry replaces the text of the applicant's unreplied enquiry.
func (s *Service) EditEnquiry(ctx context.Context, applicant User, id int, text string) (Enquiry, error) {
	var updated Enquiry
	_, err := s.run(ctx, opEditEnquiry, applicant, strconv.Itoa(id), func(tx domain.Transaction) error {
		if _, err := ownEnquiry(tx.Snapshot(), opEditEnquiry, applicant, id); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateEnquiry(id, func(e *domain.Enquiry) error {
			e.Text = strings.TrimSpace(text)
			return nil
		})
		return err
	})
	return updated, err
}

// DeleteEnquiry removes the applicant's unreplied enquiry.
func (s *Service) DeleteEnquiry(ctx context.Context, applicant User, id int) error {
	_, err := s.run(ctx, opDeleteEnquiry, applicant, strconv.Itoa(id), func(tx domain.Transaction) error {
		if _, err := ownEnquiry(tx.Snapshot(), opDeleteEnquiry, applicant, id); err != nil {
			return err
		}
		return tx.DeleteEnquiry(id)
	})
	return err
}

func ownEnquiry(view domain.TransactionView, op string, applicant domain.User, id int) (domain.Enquiry, error) {
	e, ok := view.FindEnquiry(id)
	if !ok {
		return domain.Enquiry{}, domain.NotFound(domain.EntityEnquiry, strconv.Itoa(id))
	}
	if e.ApplicantNRIC != applicant.NRIC {
		return domain.Enquiry{}, domain.Rejected(op, domain.ErrNotAuthorized, "enquiry %d belongs to another applicant", id)
	}
	if e.Replied() {
		return domain.Enquiry{}, domain.Rejected(op, domain.ErrEnquiryReplied, "enquiry %d has already been replied to", id)
	}
	return e, nil
}

// ReplyEnquiry answers an enquiry. The project's manager or an officer
// handling the project may reply, once.
func (s *Service) ReplyEnquiry(ctx context.Context, staff User, id int, reply string) (Enquiry, error) {
	reply = strings.TrimSpace(reply)
	var updated Enquiry
	_, err := s.run(ctx, opReplyEnquiry, staff, strconv.Itoa(id), func(tx domain.Transaction) error {
		if reply == "" {
			return domain.ValidationError{Field: "reply", Reason: "reply is required"}
		}
		view := tx.Snapshot()
		e, ok := view.FindEnquiry(id)
		if !ok {
			return domain.NotFound(domain.EntityEnquiry, strconv.Itoa(id))
		}
		if err := requireStaff(view, opReplyEnquiry, staff, e.ProjectName); err != nil {
			return err
		}
		if e.Replied() {
			return domain.Rejected(opReplyEnquiry, domain.ErrEnquiryReplied, "enquiry %d has already been replied to", id)
		}
		var err error
		updated, err = tx.UpdateEnquiry(id, func(e *domain.Enquiry) error {
			e.Reply = &reply
			return nil
		})
		return err
	})
	return updated, err
}

// requireStaff accepts the project's manager or an officer handling it.
func requireStaff(view domain.TransactionView, op string, staff domain.User, projectName string) error {
	project, err := findProject(view, projectName)
	if err != nil {
		return err
	}
	switch {
	case staff.Role.CanManageProjects() && project.ManagerNRIC == staff.NRIC:
		return nil
	case staff.Role.CanHandleProjects() && handledProjects(view, staff.NRIC)[projectName]:
		return nil
	}
	return domain.Rejected(op, domain.ErrNotAuthorized, "%s does not manage or handle project %s", staff.NRIC, projectName)
}

// ListEnquiriesByApplicant returns the applicant's enquiries in id order.
func (s *Service) ListEnquiriesByApplicant(ctx context.Context, applicantNRIC string) ([]Enquiry, error) {
	return s.listEnquiries(ctx, func(e domain.Enquiry) bool { return e.ApplicantNRIC == applicantNRIC })
}

// ListEnquiriesForProject returns a project's enquiries to its manager or
// handling officers.
func (s *Service) ListEnquiriesForProject(ctx context.Context, staff User, projectName string) ([]Enquiry, error) {
	if err := s.view(ctx, func(view domain.TransactionView) error {
		return requireStaff(view, "list_enquiries", staff, projectName)
	}); err != nil {
		return nil, err
	}
	return s.listEnquiries(ctx, func(e domain.Enquiry) bool { return e.ProjectName == projectName })
}

// ListAllEnquiries returns every enquiry. Managers only.
func (s *Service) ListAllEnquiries(ctx context.Context, manager User) ([]Enquiry, error) {
	if err := requireManager("list_enquiries", manager); err != nil {
		return nil, err
	}
	return s.listEnquiries(ctx, func(domain.Enquiry) bool { return true })
}

func (s *Service) listEnquiries(ctx context.Context, keep func(domain.Enquiry) bool) ([]Enquiry, error) {
	var out []Enquiry
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, e := range view.ListEnquiries() {
			if keep(e) {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
