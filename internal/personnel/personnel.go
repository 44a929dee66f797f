package personnel

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultPosition is recorded for employees added without a position.
const DefaultPosition = "Специалист НК II уровня"

// Employee is one inspection specialist. Employees sharing a TeamNumber work
// together; the first one found by surname leads the report.
type Employee struct {
	ID              int64  `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Patronymic      string `json:"patronymic" yaml:"patronymic"`
	Surname         string `json:"surname" yaml:"surname"`
	TeamNumber      int    `json:"team_number" yaml:"team_number"`
	Position        string `json:"position" yaml:"position"`
	License         string `json:"license" yaml:"license"`
	LicenseNumber   string `json:"license_number" yaml:"license_number"`
	InstrumentTable string `json:"instrument_table,omitempty" yaml:"instrument_table"` // w:tbl XML
}

// FullName is "Surname Name Patronymic".
func (e Employee) FullName() string {
	return joinNonEmpty(e.Surname, e.Name, e.Patronymic)
}

// ShortName is "N. P. Surname".
func (e Employee) ShortName() string {
	return joinNonEmpty(initial(e.Name), initial(e.Patronymic), e.Surname)
}

func initial(s string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(s))
	if r == utf8.RuneError {
		return ""
	}
	return string(r) + "."
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// License is a certification record, linked to employees by number.
type License struct {
	ID            int64     `json:"id"`
	LicenseNumber string    `json:"license_number"`
	License       string    `json:"license"`
	EndDate       time.Time `json:"license_end_date"`
}
