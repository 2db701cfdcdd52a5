package core

import (
	"context"

	"btocore/pkg/domain"
)

// ReportFilter narrows a booking report. Zero fields match everything.
type ReportFilter struct {
	ProjectName   string
	FlatType      domain.FlatType
	MaritalStatus domain.MaritalStatus
	MinAge        int
	// MaxAge of zero means no upper bound.
	MaxAge int
}

func (f ReportFilter) match(row BookingRow) bool {
	switch {
	case f.ProjectName != "" && row.ProjectName != f.ProjectName:
		return false
	case f.FlatType != 0 && row.FlatType != f.FlatType:
		return false
	case f.MaritalStatus != "" && row.MaritalStatus != f.MaritalStatus:
		return false
	case row.Age < f.MinAge:
		return false
	case f.MaxAge > 0 && row.Age > f.MaxAge:
		return false
	}
	return true
}

// BookingRow describes one booked flat. Formatting is left to callers.
type BookingRow struct {
	ApplicantNRIC string
	ApplicantName string
	Age           int
	MaritalStatus domain.MaritalStatus
	ProjectName   string
	Neighborhood  string
	FlatType      domain.FlatType
	Price         int
}

// BookingReceipt is the data printed for an applicant after booking.
type BookingReceipt struct {
	BookingRow
	OfficerNRIC string
	IssuedOn    domain.Date
}

func bookingRow(view domain.TransactionView, app domain.Application) (BookingRow, bool) {
	project, ok := view.FindProject(app.ProjectName)
	if !ok {
		return BookingRow{}, false
	}
	row := BookingRow{
		ApplicantNRIC: app.ApplicantNRIC,
		ProjectName:   project.Name,
		Neighborhood:  project.Neighborhood,
		FlatType:      app.FlatType,
		Price:         project.Supply(app.FlatType).Price,
	}
	if u, ok := view.FindUser(app.ApplicantNRIC); ok {
		row.ApplicantName = u.Name
		row.Age = u.Age
		row.MaritalStatus = u.MaritalStatus
	}
	return row, true
}

// BookingReport lists BOOKED applications across the manager's projects.
func (s *Service) BookingReport(ctx context.Context, manager User, filter ReportFilter) ([]BookingRow, error) {
	if err := requireManager("booking_report", manager); err != nil {
		return nil, err
	}
	var rows []BookingRow
	err := s.view(ctx, func(view domain.TransactionView) error {
		for _, app := range view.ListApplications() {
			if app.Status != domain.ApplicationBooked {
				continue
			}
			row, ok := bookingRow(view, app)
			if !ok {
				continue
			}
			if p, _ := view.FindProject(app.ProjectName); p.ManagerNRIC != manager.NRIC {
				continue
			}
			if filter.match(row) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

// BookingReceipt returns receipt data for a BOOKED application of a project
// the officer handles.
func (s *Service) BookingReceipt(ctx context.Context, officer User, key ApplicationKey) (BookingReceipt, error) {
	var receipt BookingReceipt
	err := s.view(ctx, func(view domain.TransactionView) error {
		app, ok := view.FindApplication(key)
		if !ok {
			return domain.NotFound(domain.EntityApplication, key.String())
		}
		if !officer.Role.CanHandleProjects() || !handledProjects(view, officer.NRIC)[key.ProjectName] {
			return domain.Rejected("booking_receipt", domain.ErrNotAuthorized,
				"officer %s does not handle project %s", officer.NRIC, key.ProjectName)
		}
		if app.Status != domain.ApplicationBooked {
			return domain.Rejected("booking_receipt", domain.ErrInvalidTransition,
				"application %s is %s, not %s", key, app.Status, domain.ApplicationBooked)
		}
		row, ok := bookingRow(view, app)
		if !ok {
			return domain.NotFound(domain.EntityProject, key.ProjectName)
		}
		receipt = BookingReceipt{BookingRow: row, OfficerNRIC: officer.NRIC, IssuedOn: s.Today()}
		return nil
	})
	return receipt, err
}
