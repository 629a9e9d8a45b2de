package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iancossa/attendance-fullstack/internal/store"
)

const (
	uniqueViolation = "23505"
	pendingIndex    = "uniq_justifications_pending"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo over db.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx store.DBTX) *Repository {
	return &Repository{db: tx}
}

// AttendanceExists reports whether the lecture/session id is known.
func (r *Repository) AttendanceExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM attendances WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// StudentStatus returns the student's mark for the session, or "" when they have none.
func (r *Repository) StudentStatus(ctx context.Context, attendanceID, studentID string) (Status, error) {
	var s string
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM student_attendances WHERE attendance_id = $1 AND student_id = $2
	`, attendanceID, studentID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return Status(s), err
}

// Student looks a student up by row id or student number.
func (r *Repository) Student(ctx context.Context, key string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, name, email, parent_email, parent_phone
		FROM students WHERE id = $1 OR student_id = $1
		LIMIT 1
	`, key)
	var s Student
	if err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Email, &s.ParentEmail, &s.ParentPhone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Statuses returns a student's attendance statuses, most recent session first.
func (r *Repository) Statuses(ctx context.Context, studentID string) ([]Status, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sa.status
		FROM student_attendances sa
		JOIN attendances a ON a.id = sa.attendance_id
		WHERE sa.student_id = $1
		ORDER BY a.held_on DESC, sa.recorded_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Status
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, Status(s))
	}
	return out, rows.Err()
}

// InsertJustification writes the justification and its documents. Call inside a transaction.
func (r *Repository) InsertJustification(ctx context.Context, j Justification) (Justification, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = Pending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO justifications (id, attendance_id, student_id, reason, description, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING submitted_at
	`, j.ID, j.AttendanceID, j.StudentID, j.Reason, j.Description, string(j.Status))
	if err := row.Scan(&j.SubmittedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == pendingIndex {
			return Justification{}, ErrAlreadyPending
		}
		return Justification{}, err
	}
	for i := range j.Documents {
		d := &j.Documents[i]
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO justification_documents (id, justification_id, name, content_type, size, url)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, d.ID, j.ID, d.Name, d.ContentType, d.Size, d.URL); err != nil {
			return Justification{}, err
		}
	}
	return j, nil
}

const justificationColumns = `id, attendance_id, student_id, reason, description, status, review_note, reviewed_by, submitted_at, reviewed_at`

func scanJustification(sc interface{ Scan(...any) error }) (Justification, error) {
	var j Justification
	var status string
	err := sc.Scan(&j.ID, &j.AttendanceID, &j.StudentID, &j.Reason, &j.Description, &status, &j.ReviewNote, &j.ReviewedBy, &j.SubmittedAt, &j.ReviewedAt)
	j.Status = ReviewStatus(status)
	return j, err
}

// Justification returns one justification with its documents, or nil.
func (r *Repository) Justification(ctx context.Context, id string) (*Justification, error) {
	j, err := scanJustification(r.db.QueryRowContext(ctx, `SELECT `+justificationColumns+` FROM justifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	docs, err := r.documents(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	j.Documents = docs
	return &j, nil
}

func (r *Repository) documents(ctx context.Context, justificationID string) ([]StoredDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, content_type, size, url
		FROM justification_documents WHERE justification_id = $1 ORDER BY name
	`, justificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredDocument
	for rows.Next() {
		var d StoredDocument
		if err := rows.Scan(&d.ID, &d.Name, &d.ContentType, &d.Size, &d.URL); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListJustifications returns justifications newest first with optional filters.
func (r *Repository) ListJustifications(ctx context.Context, f Filter) ([]Justification, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + justificationColumns + ` FROM justifications`
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if f.AttendanceID != "" {
		args = append(args, f.AttendanceID)
		clauses = append(clauses, "attendance_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY submitted_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Justification
	for rows.Next() {
		j, err := scanJustification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// Review moves a pending justification to status. It reports false when nothing was pending.
func (r *Repository) Review(ctx context.Context, id string, status ReviewStatus, note *string, reviewer string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE justifications
		SET status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), note, reviewer, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkExcused changes the student's existing mark for the session to excused.
// It never creates a mark; a missing one is ErrTargetNotFound.
func (r *Repository) MarkExcused(ctx context.Context, attendanceID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE student_attendances SET status = 'excused', recorded_at = NOW()
		WHERE attendance_id = $1 AND student_id = $2
	`, attendanceID, studentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTargetNotFound
	}
	return nil
}
