package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/cloudinary"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/metrics"
	"github.com/iancossa/attendance-fullstack/internal/risk"
	"github.com/iancossa/attendance-fullstack/internal/store"
)

var (
	ErrTargetNotFound        = errors.New("attendance record not found")
	ErrStudentNotFound       = errors.New("student not found")
	ErrNoStudent             = errors.New("no student identity on request")
	ErrJustificationNotFound = errors.New("justification not found")
	ErrAlreadyReviewed       = errors.New("justification already reviewed")
	ErrUnknownStatus         = errors.New("unknown review status")
	ErrNotAbsent             = errors.New("student was not absent from that session")
	ErrAlreadyPending        = errors.New("a justification for that session is already pending")
)

// Store is the persistence surface the service needs.
type Store interface {
	AttendanceExists(ctx context.Context, id string) (bool, error)
	StudentStatus(ctx context.Context, attendanceID, studentID string) (Status, error)
	Student(ctx context.Context, key string) (*Student, error)
	Statuses(ctx context.Context, studentID string) ([]Status, error)
	InsertJustification(ctx context.Context, j Justification) (Justification, error)
	Justification(ctx context.Context, id string) (*Justification, error)
	ListJustifications(ctx context.Context, f Filter) ([]Justification, error)
	Review(ctx context.Context, id string, status ReviewStatus, note *string, reviewer string) (bool, error)
	MarkExcused(ctx context.Context, attendanceID, studentID string) error
}

// Uploader stores a document and returns where it lives.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, contentType, subfolder string) (*cloudinary.UploadResult, error)
}

// Service coordinates justification submission, review and risk lookups.
type Service struct {
	repo     Store
	inTx     func(ctx context.Context, fn func(ctx context.Context, repo Store) error) error
	uploader Uploader
	logger   logging.Logger
}

var _ justification.Submitter = (*Service)(nil)

// NewService builds a service over Postgres. uploader may be nil to keep document metadata only.
func NewService(db *store.DB, uploader Uploader, logger logging.Logger) *Service {
	repo := NewRepository(db.Client)
	s := newService(repo, uploader, logger)
	s.inTx = func(ctx context.Context, fn func(ctx context.Context, repo Store) error) error {
		return db.RunInTx(ctx, func(ctx context.Context, tx store.DBTX) error {
			return fn(ctx, repo.WithTx(tx))
		})
	}
	return s
}

func newService(repo Store, uploader Uploader, logger logging.Logger) *Service {
	if c, ok := uploader.(*cloudinary.Client); ok && !c.Configured() {
		uploader = nil
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:     repo,
		uploader: uploader,
		logger:   logger,
		inTx: func(ctx context.Context, fn func(ctx context.Context, repo Store) error) error {
			return fn(ctx, repo)
		},
	}
}

type studentKey struct{}

// WithStudent marks ctx as acting for the given student (row id or student number).
func WithStudent(ctx context.Context, student string) context.Context {
	return context.WithValue(ctx, studentKey{}, student)
}

// StudentFrom returns the student set by WithStudent.
func StudentFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(studentKey{}).(string)
	return s, ok && s != ""
}

// SubmitJustification persists req against the attendance record targetID for the student on ctx.
func (s *Service) SubmitJustification(ctx context.Context, targetID string, req justification.Request) error {
	_, err := s.Submit(ctx, targetID, req)
	return err
}

// Submit is SubmitJustification returning the stored record.
func (s *Service) Submit(ctx context.Context, targetID string, req justification.Request) (Justification, error) {
	key, ok := StudentFrom(ctx)
	if !ok {
		return Justification{}, ErrNoStudent
	}
	targetID = strings.TrimSpace(targetID)
	exists, err := s.repo.AttendanceExists(ctx, targetID)
	if err != nil {
		return Justification{}, fmt.Errorf("lookup attendance: %w", err)
	}
	if !exists {
		return Justification{}, ErrTargetNotFound
	}
	stu, err := s.repo.Student(ctx, key)
	if err != nil {
		return Justification{}, fmt.Errorf("lookup student: %w", err)
	}
	if stu == nil {
		return Justification{}, ErrStudentNotFound
	}
	if err := s.justifiable(ctx, targetID, stu.ID); err != nil {
		return Justification{}, err
	}

	j := Justification{
		ID:           uuid.NewString(),
		AttendanceID: targetID,
		StudentID:    stu.ID,
		Reason:       string(req.Reason),
		Description:  strings.TrimSpace(req.Description),
		Status:       Pending,
	}
	for _, doc := range req.Documents {
		stored := StoredDocument{Name: doc.Name, ContentType: doc.ContentType, Size: doc.Size}
		if s.uploader != nil {
			res, err := s.uploader.Upload(ctx, doc.Data, doc.Name, doc.ContentType, j.ID)
			if err != nil {
				return Justification{}, fmt.Errorf("upload %s: %w", doc.Name, err)
			}
			stored.URL = &res.SecureURL
		}
		j.Documents = append(j.Documents, stored)
	}

	err = s.inTx(ctx, func(ctx context.Context, repo Store) error {
		var err error
		j, err = repo.InsertJustification(ctx, j)
		return err
	})
	if err != nil {
		return Justification{}, fmt.Errorf("insert justification: %w", err)
	}
	s.logger.Info("justification submitted", map[string]interface{}{"id": j.ID, "attendance_id": j.AttendanceID, "documents": len(j.Documents)})
	return j, nil
}

// justifiable checks the student was marked absent from the session and has nothing pending for it.
func (s *Service) justifiable(ctx context.Context, attendanceID, studentID string) error {
	status, err := s.repo.StudentStatus(ctx, attendanceID, studentID)
	if err != nil {
		return fmt.Errorf("lookup student attendance: %w", err)
	}
	switch status {
	case "":
		return ErrTargetNotFound
	case Absent:
	default:
		return fmt.Errorf("%w (marked %s)", ErrNotAbsent, status)
	}
	pending, err := s.repo.ListJustifications(ctx, Filter{StudentID: studentID, AttendanceID: attendanceID, Status: Pending, Limit: 1})
	if err != nil {
		return fmt.Errorf("lookup pending justifications: %w", err)
	}
	if len(pending) > 0 {
		return ErrAlreadyPending
	}
	return nil
}

// Justifications lists stored justifications.
func (s *Service) Justifications(ctx context.Context, f Filter) ([]Justification, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, f.Status)
	}
	if f.StudentID != "" {
		stu, err := s.repo.Student(ctx, f.StudentID)
		if err != nil {
			return nil, err
		}
		if stu == nil {
			return nil, ErrStudentNotFound
		}
		f.StudentID = stu.ID
	}
	return s.repo.ListJustifications(ctx, f)
}

// ReviewJustification approves or rejects a pending justification.
// Approval marks the student excused for that session.
func (s *Service) ReviewJustification(ctx context.Context, id string, approve bool, note, reviewer string) (*Justification, error) {
	status := Rejected
	if approve {
		status = Approved
	}
	var notePtr *string
	if n := strings.TrimSpace(note); n != "" {
		notePtr = &n
	}

	var out *Justification
	err := s.inTx(ctx, func(ctx context.Context, repo Store) error {
		j, err := repo.Justification(ctx, id)
		if err != nil {
			return err
		}
		if j == nil {
			return ErrJustificationNotFound
		}
		ok, err := repo.Review(ctx, id, status, notePtr, reviewer)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReviewed
		}
		if approve {
			if err := repo.MarkExcused(ctx, j.AttendanceID, j.StudentID); err != nil {
				return err
			}
		}
		out, err = repo.Justification(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("justification reviewed", map[string]interface{}{"id": id, "status": status, "reviewer": reviewer})
	return out, nil
}

// StudentRisk computes the student's attendance rate, absence streak and severity.
func (s *Service) StudentRisk(ctx context.Context, key string) (Risk, error) {
	stu, err := s.repo.Student(ctx, key)
	if err != nil {
		return Risk{}, err
	}
	if stu == nil {
		return Risk{}, ErrStudentNotFound
	}
	statuses, err := s.repo.Statuses(ctx, stu.ID)
	if err != nil {
		return Risk{}, err
	}

	out := Risk{StudentID: stu.StudentID, Name: stu.Name, Sessions: len(statuses)}
	streak := true
	for _, st := range statuses {
		if st.Counts() {
			out.Attended++
		}
		if streak && st == Absent {
			out.ConsecutiveAbsences++
		} else {
			streak = false
		}
	}
	out.Rate = risk.Rate(out.Attended, out.Sessions)
	out.Severity = risk.Classify(out.Rate)
	out.Label = out.Severity.Label()
	out.Color = out.Severity.Color()
	metrics.Classifications.WithLabelValues(string(out.Severity)).Inc()
	return out, nil
}

// AlertStudent projects a student into the data the alert composer renders.
func (s *Service) AlertStudent(ctx context.Context, key string) (alert.Student, error) {
	r, err := s.StudentRisk(ctx, key)
	if err != nil {
		return alert.Student{}, err
	}
	stu, err := s.repo.Student(ctx, key)
	if err != nil {
		return alert.Student{}, err
	}
	if stu == nil {
		return alert.Student{}, ErrStudentNotFound
	}
	out := alert.Student{
		ID:                  stu.ID,
		StudentID:           stu.StudentID,
		Name:                stu.Name,
		Email:               stu.Email,
		AttendanceRate:      r.Rate,
		ConsecutiveAbsences: r.ConsecutiveAbsences,
	}
	if stu.ParentEmail != nil {
		out.ParentEmail = *stu.ParentEmail
	}
	if stu.ParentPhone != nil {
		out.ParentPhone = *stu.ParentPhone
	}
	return out, nil
}
