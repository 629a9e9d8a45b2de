package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iancossa/attendance-fullstack/internal/cloudinary"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/risk"
)

type fakeStore struct {
	mu             sync.Mutex
	attendances    map[string]bool
	students       map[string]*Student
	statuses       map[string][]Status
	marks          map[string]Status // attendance/student
	justifications map[string]*Justification
	excused        []string
	insertErr      error
}

func newFakeStore() *fakeStore {
	parent := "guardian@home.test"
	stu := &Student{ID: "row-1", StudentID: "STU-1", Name: "Amina", Email: "amina@uni.test", ParentEmail: &parent}
	return &fakeStore{
		attendances:    map[string]bool{"lec-1": true},
		students:       map[string]*Student{"row-1": stu, "STU-1": stu},
		statuses:       map[string][]Status{},
		marks:          map[string]Status{"lec-1/row-1": Absent},
		justifications: map[string]*Justification{},
	}
}

func (f *fakeStore) AttendanceExists(_ context.Context, id string) (bool, error) {
	return f.attendances[id], nil
}

func (f *fakeStore) StudentStatus(_ context.Context, attendanceID, studentID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[attendanceID+"/"+studentID], nil
}

func (f *fakeStore) Student(_ context.Context, key string) (*Student, error) {
	return f.students[key], nil
}

func (f *fakeStore) Statuses(_ context.Context, id string) ([]Status, error) {
	return f.statuses[id], nil
}

func (f *fakeStore) InsertJustification(_ context.Context, j Justification) (Justification, error) {
	if f.insertErr != nil {
		return Justification{}, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := j
	f.justifications[j.ID] = &cp
	return j, nil
}

func (f *fakeStore) Justification(_ context.Context, id string) (*Justification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.justifications[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) ListJustifications(_ context.Context, flt Filter) ([]Justification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Justification
	for _, j := range f.justifications {
		if flt.StudentID != "" && j.StudentID != flt.StudentID {
			continue
		}
		if flt.AttendanceID != "" && j.AttendanceID != flt.AttendanceID {
			continue
		}
		if flt.Status != "" && j.Status != flt.Status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeStore) Review(_ context.Context, id string, status ReviewStatus, note *string, reviewer string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.justifications[id]
	if !ok || j.Status != Pending {
		return false, nil
	}
	j.Status = status
	j.ReviewNote = note
	j.ReviewedBy = &reviewer
	return true, nil
}

func (f *fakeStore) MarkExcused(_ context.Context, attendanceID, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attendanceID + "/" + studentID
	if _, ok := f.marks[key]; !ok {
		return ErrTargetNotFound
	}
	f.marks[key] = Excused
	f.excused = append(f.excused, key)
	return nil
}

type fakeUploader struct {
	err       error
	subfolder string
	calls     int
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, filename, _, subfolder string) (*cloudinary.UploadResult, error) {
	u.calls++
	u.subfolder = subfolder
	if u.err != nil {
		return nil, u.err
	}
	return &cloudinary.UploadResult{SecureURL: "https://cdn.test/" + filename}, nil
}

func validRequest() justification.Request {
	return justification.Request{
		TargetID:    "lec-1",
		Reason:      justification.ReasonMedical,
		Description: "  Hospitalised with malaria  ",
		Documents: []justification.Document{
			justification.NewDocument("note.pdf", []byte("%PDF-1.4\n%%EOF\n")),
		},
	}
}

func TestSubmit(t *testing.T) {
	st := newFakeStore()
	up := &fakeUploader{}
	svc := newService(st, up, logging.Discard())

	ctx := WithStudent(context.Background(), "STU-1")
	j, err := svc.Submit(ctx, "lec-1", validRequest())
	require.NoError(t, err)

	assert.Equal(t, "row-1", j.StudentID)
	assert.Equal(t, Pending, j.Status)
	assert.Equal(t, "Hospitalised with malaria", j.Description)
	require.Len(t, j.Documents, 1)
	require.NotNil(t, j.Documents[0].URL)
	assert.Equal(t, "https://cdn.test/note.pdf", *j.Documents[0].URL)
	assert.Equal(t, j.ID, up.subfolder)
	assert.Contains(t, st.justifications, j.ID)
}

func TestSubmitErrors(t *testing.T) {
	boom := errors.New("db down")
	tests := []struct {
		name     string
		ctx      context.Context
		target   string
		uploader *fakeUploader
		insert   error
		want     error
	}{
		{name: "no student", ctx: context.Background(), target: "lec-1", want: ErrNoStudent},
		{name: "unknown target", ctx: WithStudent(context.Background(), "STU-1"), target: "lec-9", want: ErrTargetNotFound},
		{name: "unknown student", ctx: WithStudent(context.Background(), "STU-9"), target: "lec-1", want: ErrStudentNotFound},
		{name: "upload fails", ctx: WithStudent(context.Background(), "STU-1"), target: "lec-1", uploader: &fakeUploader{err: boom}, want: boom},
		{name: "insert fails", ctx: WithStudent(context.Background(), "STU-1"), target: "lec-1", insert: boom, want: boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.insertErr = tt.insert
			var up Uploader
			if tt.uploader != nil {
				up = tt.uploader
			}
			err := newService(st, up, nil).SubmitJustification(tt.ctx, tt.target, validRequest())
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, st.justifications)
		})
	}
}

func TestSubmitRequiresAbsenceFromSession(t *testing.T) {
	tests := []struct {
		name   string
		target string
		mark   Status
		want   error
	}{
		{name: "session of another class", target: "other-class-lec", want: ErrTargetNotFound},
		{name: "marked present", target: "lec-2", mark: Present, want: ErrNotAbsent},
		{name: "marked late", target: "lec-2", mark: Late, want: ErrNotAbsent},
		{name: "already excused", target: "lec-2", mark: Excused, want: ErrNotAbsent},
		{name: "marked absent", target: "lec-2", mark: Absent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.attendances[tt.target] = true
			if tt.mark != "" {
				st.marks[tt.target+"/row-1"] = tt.mark
			}
			up := &fakeUploader{}
			_, err := newService(st, up, nil).Submit(WithStudent(context.Background(), "STU-1"), tt.target, validRequest())
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, st.justifications)
			assert.Zero(t, up.calls)
		})
	}
}

func TestSubmitRejectsSecondPending(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil, nil)
	ctx := WithStudent(context.Background(), "STU-1")
	first, err := svc.Submit(ctx, "lec-1", validRequest())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "lec-1", validRequest())
	assert.ErrorIs(t, err, ErrAlreadyPending)
	assert.Len(t, st.justifications, 1)

	_, err = svc.ReviewJustification(context.Background(), first.ID, false, "no evidence", "fac-7")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "lec-1", validRequest())
	assert.NoError(t, err, "a rejected justification may be resubmitted")
}

func TestApprovalOnlyUpdatesExistingMark(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil, nil)
	j, err := svc.Submit(WithStudent(context.Background(), "STU-1"), "lec-1", validRequest())
	require.NoError(t, err)

	// the mark disappears before review, e.g. the session was re-recorded
	st.mu.Lock()
	delete(st.marks, "lec-1/row-1")
	st.mu.Unlock()

	_, err = svc.ReviewJustification(context.Background(), j.ID, true, "", "fac-7")
	assert.ErrorIs(t, err, ErrTargetNotFound)
	assert.Empty(t, st.excused)
	assert.NotContains(t, st.marks, "lec-1/row-1")
}

func TestSubmitWithoutUploaderKeepsMetadata(t *testing.T) {
	svc := newService(newFakeStore(), cloudinary.New("", "", "", ""), nil)
	j, err := svc.Submit(WithStudent(context.Background(), "row-1"), "lec-1", validRequest())
	require.NoError(t, err)
	require.Len(t, j.Documents, 1)
	assert.Nil(t, j.Documents[0].URL)
	assert.Equal(t, "application/pdf", j.Documents[0].ContentType)
}

func TestReviewJustification(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil, nil)
	j, err := svc.Submit(WithStudent(context.Background(), "STU-1"), "lec-1", validRequest())
	require.NoError(t, err)

	got, err := svc.ReviewJustification(context.Background(), j.ID, true, " medical note verified ", "fac-7")
	require.NoError(t, err)
	assert.Equal(t, Approved, got.Status)
	require.NotNil(t, got.ReviewNote)
	assert.Equal(t, "medical note verified", *got.ReviewNote)
	assert.Equal(t, []string{"lec-1/row-1"}, st.excused)
	assert.Equal(t, Excused, st.marks["lec-1/row-1"])

	_, err = svc.ReviewJustification(context.Background(), j.ID, false, "", "fac-7")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	_, err = svc.ReviewJustification(context.Background(), "missing", false, "", "fac-7")
	assert.ErrorIs(t, err, ErrJustificationNotFound)
}

func TestReviewRejectDoesNotExcuse(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil, nil)
	j, err := svc.Submit(WithStudent(context.Background(), "STU-1"), "lec-1", validRequest())
	require.NoError(t, err)

	got, err := svc.ReviewJustification(context.Background(), j.ID, false, "", "fac-7")
	require.NoError(t, err)
	assert.Equal(t, Rejected, got.Status)
	assert.Nil(t, got.ReviewNote)
	assert.Empty(t, st.excused)
}

func TestStudentRisk(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []Status
		rate        float64
		consecutive int
		severity    risk.Severity
	}{
		{name: "no sessions", statuses: nil, rate: 100, severity: risk.Excellent},
		{name: "all present", statuses: []Status{Present, Late, Present, Excused}, rate: 100, severity: risk.Excellent},
		{name: "recent streak", statuses: []Status{Absent, Absent, Present, Absent, Present}, rate: 40, consecutive: 2, severity: risk.Critical},
		{name: "old absences only", statuses: []Status{Present, Absent, Present, Present}, rate: 75, severity: risk.Good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			st.statuses["row-1"] = tt.statuses
			r, err := newService(st, nil, nil).StudentRisk(context.Background(), "STU-1")
			require.NoError(t, err)
			assert.InDelta(t, tt.rate, r.Rate, 0.001)
			assert.Equal(t, tt.consecutive, r.ConsecutiveAbsences)
			assert.Equal(t, tt.severity, r.Severity)
			assert.Equal(t, tt.severity.Color(), r.Color)
		})
	}

	_, err := newService(newFakeStore(), nil, nil).StudentRisk(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestAlertStudent(t *testing.T) {
	st := newFakeStore()
	st.statuses["row-1"] = []Status{Absent, Absent, Absent, Present}
	s, err := newService(st, nil, nil).AlertStudent(context.Background(), "STU-1")
	require.NoError(t, err)
	assert.Equal(t, "STU-1", s.StudentID)
	assert.Equal(t, "guardian@home.test", s.ParentEmail)
	assert.Empty(t, s.ParentPhone)
	assert.Equal(t, 3, s.ConsecutiveAbsences)
	assert.InDelta(t, 25.0, s.AttendanceRate, 0.001)
}

func TestJustificationsFilter(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, nil, nil)
	_, err := svc.Submit(WithStudent(context.Background(), "STU-1"), "lec-1", validRequest())
	require.NoError(t, err)

	list, err := svc.Justifications(context.Background(), Filter{StudentID: "STU-1", Status: Pending})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Justifications(context.Background(), Filter{Status: "lost"})
	assert.ErrorIs(t, err, ErrUnknownStatus)
	_, err = svc.Justifications(context.Background(), Filter{StudentID: "STU-404"})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}
