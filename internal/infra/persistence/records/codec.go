// Package records persists the entity store as one CSV file per entity type
// on a blob store.
package records

import (
	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record file names.
const (
	FileUsers         = "users.csv"
	FileProjects      = "projects.csv"
	FileApplications  = "applications.csv"
	FileRegistrations = "registrations.csv"
	FileEnquiries     = "enquiries.csv"
)

// Files lists the record files in write order.
var Files = []string{FileUsers, FileProjects, FileApplications, FileRegistrations, FileEnquiries}

// rosterSeparator joins officer NRICs inside the projects roster column.
const rosterSeparator = ";"

var headers = map[string][]string{
	FileUsers:         {"NRIC", "Name", "Age", "MaritalStatus", "Role", "PasswordHash"},
	FileProjects:      {"Name", "Neighborhood", "TwoRoomUnits", "TwoRoomPrice", "ThreeRoomUnits", "ThreeRoomPrice", "OpenDate", "CloseDate", "ManagerNRIC", "OfficerSlots", "Officers", "Visible"},
	FileApplications:  {"ApplicantNRIC", "ProjectName", "FlatType", "Status", "WithdrawalRequested"},
	FileRegistrations: {"OfficerNRIC", "ProjectName", "Status"},
	FileEnquiries:     {"ID", "ApplicantNRIC", "ProjectName", "Text", "Reply"},
}

// Header returns the fixed header row for a record file.
func Header(file string) []string {
	return append([]string(nil), headers[file]...)
}

// ErrHeaderMismatch is wrapped when a file's first row is not the expected header.
var ErrHeaderMismatch = errors.New("header mismatch")

// RecordError locates a malformed row.
type RecordError struct {
	File string
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.File, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Encode renders every entity file of the snapshot.
func Encode(snapshot memory.Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Files))
	for _, file := range Files {
		var rows [][]string
		switch file {
		case FileUsers:
			for _, u := range snapshot.Users {
				rows = append(rows, []string{u.NRIC, u.Name, strconv.Itoa(u.Age), string(u.MaritalStatus), string(u.Role), u.PasswordHash})
			}
		case FileProjects:
			for _, p := range snapshot.Projects {
				rows = append(rows, []string{
					p.Name, p.Neighborhood,
					strconv.Itoa(p.TwoRoom.Units), strconv.Itoa(p.TwoRoom.Price),
					strconv.Itoa(p.ThreeRoom.Units), strconv.Itoa(p.ThreeRoom.Price),
					p.OpenDate.String(), p.CloseDate.String(),
					p.ManagerNRIC, strconv.Itoa(p.OfficerSlots),
					strings.Join(p.OfficerNRICs, rosterSeparator),
					strconv.FormatBool(p.Visible),
				})
			}
		case FileApplications:
			for _, a := range snapshot.Applications {
				rows = append(rows, []string{a.ApplicantNRIC, a.ProjectName, a.FlatType.String(), string(a.Status), strconv.FormatBool(a.WithdrawalRequested)})
			}
		case FileRegistrations:
			for _, r := range snapshot.Registrations {
				rows = append(rows, []string{r.OfficerNRIC, r.ProjectName, string(r.Status)})
			}
		case FileEnquiries:
			for _, e := range snapshot.Enquiries {
				reply := ""
				if e.Reply != nil {
					reply = *e.Reply
				}
				rows = append(rows, []string{strconv.Itoa(e.ID), e.ApplicantNRIC, e.ProjectName, e.Text, reply})
			}
		}
		data, err := writeCSV(headers[file], rows)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", file, err)
		}
		out[file] = data
	}
	return out, nil
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the given files into a snapshot. Missing files decode as empty.
func Decode(files map[string][]byte) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	for _, file := range Files {
		data, ok := files[file]
		if !ok {
			continue
		}
		rows, err := readCSV(file, data)
		if err != nil {
			return memory.Snapshot{}, err
		}
		for i, row := range rows {
			// header is line 1
			if err := decodeRow(&snapshot, file, row); err != nil {
				return memory.Snapshot{}, &RecordError{File: file, Line: i + 2, Err: err}
			}
		}
	}
	return snapshot, nil
}

func readCSV(file string, data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(headers[file])
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &RecordError{File: file, Line: 1, Err: fmt.Errorf("%w: file is empty", ErrHeaderMismatch)}
	}
	if err != nil {
		return nil, &RecordError{File: file, Line: 1, Err: fmt.Errorf("%w: %v", ErrHeaderMismatch, err)}
	}
	want := headers[file]
	for i := range want {
		if strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")) != want[i] {
			return nil, &RecordError{File: file, Line: 1, Err: fmt.Errorf("%w: got %v, want %v", ErrHeaderMismatch, header, want)}
		}
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return rows, nil
}

func decodeRow(snapshot *memory.Snapshot, file string, row []string) error {
	switch file {
	case FileUsers:
		u, err := decodeUser(row)
		if err != nil {
			return err
		}
		snapshot.Users = append(snapshot.Users, u)
	case FileProjects:
		p, err := decodeProject(row)
		if err != nil {
			return err
		}
		snapshot.Projects = append(snapshot.Projects, p)
	case FileApplications:
		a, err := decodeApplication(row)
		if err != nil {
			return err
		}
		snapshot.Applications = append(snapshot.Applications, a)
	case FileRegistrations:
		r := domain.Registration{OfficerNRIC: row[0], ProjectName: row[1], Status: domain.RegistrationStatus(strings.ToUpper(row[2]))}
		if err := r.Validate(); err != nil {
			return err
		}
		snapshot.Registrations = append(snapshot.Registrations, r)
	case FileEnquiries:
		e, err := decodeEnquiry(row)
		if err != nil {
			return err
		}
		snapshot.Enquiries = append(snapshot.Enquiries, e)
	}
	return nil
}

func decodeUser(row []string) (domain.User, error) {
	age, err := parseInt("age", row[2])
	if err != nil {
		return domain.User{}, err
	}
	marital, err := domain.ParseMaritalStatus(row[3])
	if err != nil {
		return domain.User{}, err
	}
	role, err := domain.ParseRole(row[4])
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{NRIC: row[0], Name: row[1], Age: age, MaritalStatus: marital, Role: role, PasswordHash: row[5]}
	return u, u.Validate()
}

func decodeProject(row []string) (domain.Project, error) {
	ints := make([]int, 0, 5)
	for _, col := range []int{2, 3, 4, 5, 9} {
		n, err := parseInt(headers[FileProjects][col], row[col])
		if err != nil {
			return domain.Project{}, err
		}
		ints = append(ints, n)
	}
	open, err := domain.ParseDate(row[6])
	if err != nil {
		return domain.Project{}, err
	}
	closeDate, err := domain.ParseDate(row[7])
	if err != nil {
		return domain.Project{}, err
	}
	visible, err := parseBool("visible", row[11])
	if err != nil {
		return domain.Project{}, err
	}
	var roster []string
	for _, nric := range strings.Split(row[10], rosterSeparator) {
		if nric = strings.TrimSpace(nric); nric != "" {
			roster = append(roster, nric)
		}
	}
	p := domain.Project{
		Name:         row[0],
		Neighborhood: row[1],
		TwoRoom:      domain.FlatSupply{Units: ints[0], Price: ints[1]},
		ThreeRoom:    domain.FlatSupply{Units: ints[2], Price: ints[3]},
		OpenDate:     open,
		CloseDate:    closeDate,
		ManagerNRIC:  row[8],
		OfficerSlots: ints[4],
		OfficerNRICs: roster,
		Visible:      visible,
	}
	return p, p.Validate()
}

func decodeApplication(row []string) (domain.Application, error) {
	ft, err := domain.ParseFlatType(row[2])
	if err != nil {
		return domain.Application{}, err
	}
	withdrawal, err := parseBool("withdrawal_requested", row[4])
	if err != nil {
		return domain.Application{}, err
	}
	a := domain.Application{ApplicantNRIC: row[0], ProjectName: row[1], FlatType: ft, Status: domain.ApplicationStatus(strings.ToUpper(row[3])), WithdrawalRequested: withdrawal}
	return a, a.Validate()
}

func decodeEnquiry(row []string) (domain.Enquiry, error) {
	id, err := parseInt("id", row[0])
	if err != nil {
		return domain.Enquiry{}, err
	}
	if id <= 0 {
		return domain.Enquiry{}, domain.ValidationError{Field: "id", Reason: "enquiry id must be positive"}
	}
	e := domain.Enquiry{ID: id, ApplicantNRIC: row[1], ProjectName: row[2], Text: row[3]}
	if row[4] != "" {
		reply := row[4]
		e.Reply = &reply
	}
	return e, e.Validate()
}

func parseInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return n, nil
}

// parseBool accepts only the literal true/false tokens.
func parseBool(field, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, domain.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not true or false", raw)}
	}
}
