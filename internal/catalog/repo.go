package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iancossa/attendance-fullstack/internal/store"
)

const uniqueViolation = "23505"

// Repository persists catalog records, one table per kind.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a catalog repo.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts rec and returns it with its new ID.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	id := uuid.NewString()
	var err error
	switch v := rec.(type) {
	case *Class:
		v.ID = id
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO classes (id, code, name, department, faculty_id, semester, credits, room, schedule)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, v.ID, v.Code, v.Name, v.Department, v.FacultyID, v.Semester, v.Credits, v.Room, v.Schedule)
	case *Department:
		v.ID = id
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO departments (id, code, name, description, head)
			VALUES ($1,$2,$3,$4,$5)
		`, v.ID, v.Code, v.Name, v.Description, v.Head)
	case *Faculty:
		v.ID = id
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO faculty (id, employee_id, name, email, department, designation, phone)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, v.ID, v.EmployeeID, v.Name, v.Email, v.Department, v.Designation, v.Phone)
	case *Student:
		v.ID = id
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO students (id, student_id, name, email, department, year, section, parent_email, parent_phone)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, v.ID, v.StudentID, v.Name, v.Email, v.Department, v.Year, v.Section, v.ParentEmail, v.ParentPhone)
	case *Event:
		v.ID = id
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO events (id, title, type, date, start_time, end_time, location, class_code, description)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, v.ID, v.Title, string(v.Type), v.Date.Time, v.StartTime, v.EndTime, v.Location, v.ClassCode, v.Description)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, rec)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", rec.Kind(), err)
	}
	return rec, nil
}

// List returns every record of kind, oldest first.
func (r *Repository) List(ctx context.Context, kind Kind, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var query string
	switch kind {
	case KindClass:
		query = `SELECT id, code, name, department, faculty_id, semester, credits, room, schedule FROM classes`
	case KindDepartment:
		query = `SELECT id, code, name, description, head FROM departments`
	case KindFaculty:
		query = `SELECT id, employee_id, name, email, department, designation, phone FROM faculty`
	case KindStudent:
		query = `SELECT id, student_id, name, email, department, year, section, parent_email, parent_phone FROM students`
	case KindEvent:
		query = `SELECT id, title, type, date, start_time, end_time, location, class_code, description FROM events`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	query += ` ORDER BY created_at, id LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		switch kind {
		case KindClass:
			var v Class
			err = rows.Scan(&v.ID, &v.Code, &v.Name, &v.Department, &v.FacultyID, &v.Semester, &v.Credits, &v.Room, &v.Schedule)
			rec = &v
		case KindDepartment:
			var v Department
			err = rows.Scan(&v.ID, &v.Code, &v.Name, &v.Description, &v.Head)
			rec = &v
		case KindFaculty:
			var v Faculty
			err = rows.Scan(&v.ID, &v.EmployeeID, &v.Name, &v.Email, &v.Department, &v.Designation, &v.Phone)
			rec = &v
		case KindStudent:
			var v Student
			err = rows.Scan(&v.ID, &v.StudentID, &v.Name, &v.Email, &v.Department, &v.Year, &v.Section, &v.ParentEmail, &v.ParentPhone)
			rec = &v
		case KindEvent:
			var v Event
			var typ string
			err = rows.Scan(&v.ID, &v.Title, &typ, &v.Date.Time, &v.StartTime, &v.EndTime, &v.Location, &v.ClassCode, &v.Description)
			v.Type = EventType(typ)
			rec = &v
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
