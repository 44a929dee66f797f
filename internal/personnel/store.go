// Package personnel keeps the employees and licenses used to fill the
// leader and worker fields of a report, in SQLite.
package personnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("personnel: not found")
	ErrInvalid  = errors.New("personnel: invalid record")
)

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT    NOT NULL,
	patronymic       TEXT    NOT NULL DEFAULT '',
	surname          TEXT    NOT NULL,
	team_number      INTEGER NOT NULL,
	position         TEXT    NOT NULL DEFAULT 'Специалист НК II уровня',
	license          TEXT    NOT NULL,
	license_number   TEXT    NOT NULL DEFAULT 'NONE',
	instrument_table TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS employees_surname ON employees(surname);
CREATE INDEX IF NOT EXISTS employees_team ON employees(team_number);

CREATE TABLE IF NOT EXISTS licenses (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	license_number   TEXT NOT NULL,
	license          TEXT NOT NULL,
	license_end_date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS licenses_number ON licenses(license_number);
`

const dateLayout = "2006-01-02"

const employeeColumns = `id, name, patronymic, surname, team_number, position, license, license_number, instrument_table`

// Store is the personnel database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the database at path and applies the schema. Use
// ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("personnel: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("personnel: open: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them applied
	// and gives :memory: one shared database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("personnel: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("personnel: schema: %w", err)
	}
	log.Info("personnel store ready", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Name, &e.Patronymic, &e.Surname, &e.TeamNumber,
		&e.Position, &e.License, &e.LicenseNumber, &e.InstrumentTable)
	return e, err
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (Employee, bool, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Employee{}, false, nil
	}
	if err != nil {
		return Employee{}, false, fmt.Errorf("personnel: query: %w", err)
	}
	return e, true, nil
}

// FindBySurname returns the first employee whose surname equals surname
// after trimming both sides.
func (s *Store) FindBySurname(ctx context.Context, surname string) (Employee, bool, error) {
	return s.queryOne(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE trim(surname) = ? ORDER BY id LIMIT 1`,
		strings.TrimSpace(surname))
}

// FindTeammate returns the first other member of team.
func (s *Store) FindTeammate(ctx context.Context, team int, excludeID int64) (Employee, bool, error) {
	return s.queryOne(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE team_number = ? AND id != ? ORDER BY id LIMIT 1`,
		team, excludeID)
}

// Get returns employee id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Employee, error) {
	e, ok, err := s.queryOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	if err != nil {
		return Employee{}, err
	}
	if !ok {
		return Employee{}, ErrNotFound
	}
	return e, nil
}

// List returns all employees ordered by team and surname.
func (s *Store) List(ctx context.Context) ([]Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY team_number, surname, id`)
	if err != nil {
		return nil, fmt.Errorf("personnel: list: %w", err)
	}
	defer rows.Close()

	out := []Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("personnel: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalize(e *Employee) error {
	e.Name = strings.TrimSpace(e.Name)
	e.Surname = strings.TrimSpace(e.Surname)
	e.Patronymic = strings.TrimSpace(e.Patronymic)
	e.License = strings.TrimSpace(e.License)
	if e.Name == "" || e.Surname == "" || e.License == "" {
		return fmt.Errorf("%w: name, surname and license are required", ErrInvalid)
	}
	if e.TeamNumber <= 0 {
		return fmt.Errorf("%w: team number must be positive", ErrInvalid)
	}
	if strings.TrimSpace(e.Position) == "" {
		e.Position = DefaultPosition
	}
	if strings.TrimSpace(e.LicenseNumber) == "" {
		e.LicenseNumber = "NONE"
	}
	return nil
}

// Add inserts e and returns it with its new id.
func (s *Store) Add(ctx context.Context, e Employee) (Employee, error) {
	if err := normalize(&e); err != nil {
		return Employee{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (name, patronymic, surname, team_number, position, license, license_number, instrument_table)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Patronymic, e.Surname, e.TeamNumber, e.Position, e.License, e.LicenseNumber, e.InstrumentTable)
	if err != nil {
		return Employee{}, fmt.Errorf("personnel: insert: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return Employee{}, fmt.Errorf("personnel: insert id: %w", err)
	}
	s.log.Info("employee added", "id", e.ID, "surname", e.Surname, "team", e.TeamNumber)
	return e, nil
}

// Update overwrites the stored record with e.ID.
func (s *Store) Update(ctx context.Context, e Employee) error {
	if err := normalize(&e); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE employees SET name = ?, patronymic = ?, surname = ?, team_number = ?, position = ?,
		 license = ?, license_number = ?, instrument_table = ? WHERE id = ?`,
		e.Name, e.Patronymic, e.Surname, e.TeamNumber, e.Position, e.License, e.LicenseNumber, e.InstrumentTable, e.ID)
	if err != nil {
		return fmt.Errorf("personnel: update: %w", err)
	}
	return affectedOne(res)
}

// SetInstrumentTable stores the instrument table XML of employee id.
func (s *Store) SetInstrumentTable(ctx context.Context, id int64, tableXML string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE employees SET instrument_table = ? WHERE id = ?`, tableXML, id)
	if err != nil {
		return fmt.Errorf("personnel: update table: %w", err)
	}
	return affectedOne(res)
}

// Delete removes employee id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("personnel: delete: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	s.log.Info("employee deleted", "id", id)
	return nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("personnel: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddLicense records a license.
func (s *Store) AddLicense(ctx context.Context, l License) (License, error) {
	l.LicenseNumber = strings.TrimSpace(l.LicenseNumber)
	l.License = strings.TrimSpace(l.License)
	if l.LicenseNumber == "" || l.License == "" || l.EndDate.IsZero() {
		return License{}, fmt.Errorf("%w: license number, name and end date are required", ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (license_number, license, license_end_date) VALUES (?, ?, ?)`,
		l.LicenseNumber, l.License, l.EndDate.Format(dateLayout))
	if err != nil {
		return License{}, fmt.Errorf("personnel: insert license: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return License{}, fmt.Errorf("personnel: insert license id: %w", err)
	}
	return l, nil
}

// LicensesFor returns the licenses recorded under number, soonest expiry
// first.
func (s *Store) LicensesFor(ctx context.Context, number string) ([]License, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, license_number, license, license_end_date FROM licenses
		 WHERE license_number = ? ORDER BY license_end_date, id`, strings.TrimSpace(number))
	if err != nil {
		return nil, fmt.Errorf("personnel: licenses: %w", err)
	}
	defer rows.Close()

	out := []License{}
	for rows.Next() {
		var (
			l   License
			end string
		)
		if err := rows.Scan(&l.ID, &l.LicenseNumber, &l.License, &end); err != nil {
			return nil, fmt.Errorf("personnel: scan license: %w", err)
		}
		if l.EndDate, err = time.Parse(dateLayout, end); err != nil {
			return nil, fmt.Errorf("personnel: license %d end date: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
