package justification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/validation"
)

type fakeSubmitter struct {
	calls   atomic.Int32
	err     error
	release chan struct{} // when set, SubmitJustification blocks until closed
	entered chan struct{}
	gotCtx  context.Context
	got     Request
}

func (s *fakeSubmitter) SubmitJustification(ctx context.Context, targetID string, req Request) error {
	s.calls.Add(1)
	s.gotCtx = ctx
	s.got = req
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	return s.err
}

func newTestForm(sub Submitter) (*Form, *notify.Memory, *atomic.Int32) {
	n := notify.NewMemory(10)
	var closed atomic.Int32
	f := NewForm("form-1", FormOptions{
		Submitter: sub,
		Notifier:  n,
		OnClose:   func() { closed.Add(1) },
	})
	return f, n, &closed
}

func fill(t *testing.T, f *Form, desc string) {
	t.Helper()
	require.NoError(t, f.SetTarget("lecture-42"))
	require.NoError(t, f.SetReason(ReasonMedical))
	require.NoError(t, f.SetDescription(desc))
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		reason     Reason
		desc       string
		wantFields []string
	}{
		{name: "short description", target: "l1", reason: ReasonMedical, desc: "too short", wantFields: []string{"description"}},
		{name: "padded short description", target: "l1", reason: ReasonFamily, desc: "   abc      ", wantFields: []string{"description"}},
		{name: "unknown reason", target: "l1", reason: "holiday", desc: "I was away at a wedding", wantFields: []string{"reason"}},
		{name: "missing target", target: " ", reason: ReasonOther, desc: "Bus broke down on the way", wantFields: []string{"target_id"}},
		{name: "everything missing", wantFields: []string{"description", "reason", "target_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			f, n, closed := newTestForm(sub)
			require.NoError(t, f.SetTarget(tt.target))
			require.NoError(t, f.SetReason(tt.reason))
			require.NoError(t, f.SetDescription(tt.desc))

			err := f.Submit(context.Background())
			verr, ok := validation.As(err)
			require.True(t, ok, "want validation error, got %v", err)
			for _, fld := range tt.wantFields {
				assert.True(t, verr.Has(fld), "missing error for %s", fld)
			}
			assert.Len(t, verr.Map(), len(tt.wantFields))

			assert.Equal(t, int32(0), sub.calls.Load())
			assert.Equal(t, Idle, f.State())
			assert.Equal(t, int32(0), closed.Load())
			events, _ := n.Recent(context.Background(), 0)
			assert.Empty(t, events)
			assert.NotEmpty(t, f.Snapshot().Errors)
		})
	}
}

func TestSubmitSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	f, n, closed := newTestForm(sub)
	fill(t, f, "Fever, doctor's note attached")

	require.NoError(t, f.Submit(context.Background()))

	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, "lecture-42", sub.got.TargetID)
	assert.Equal(t, Succeeded, f.State())
	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, Request{}, f.Draft())

	events, _ := n.Recent(context.Background(), 0)
	require.Len(t, events, 1)
	assert.Equal(t, notify.Success, events[0].Type)
	assert.Equal(t, SuccessMessage, events[0].Message)

	// the form is done; a second submit must not reach the submitter
	assert.ErrorIs(t, f.Submit(context.Background()), ErrAlreadySubmitted)
	f.Close()
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, int32(1), closed.Load())
}

func TestSubmitFailurePreservesDraft(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("db down")}
	f, n, closed := newTestForm(sub)
	fill(t, f, "Train strike all morning")
	require.NoError(t, f.Attach(Document{Name: "ticket.png", Data: pngBytes()}))
	before := f.Draft()

	err := f.Submit(context.Background())
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.EqualError(t, serr.Err, "db down")

	assert.Equal(t, Idle, f.State())
	assert.Equal(t, before, f.Draft())
	assert.Equal(t, int32(0), closed.Load())
	events, _ := n.Recent(context.Background(), 0)
	assert.Empty(t, events)

	// manual retry goes through again
	sub.err = nil
	require.NoError(t, f.Submit(context.Background()))
	assert.Equal(t, int32(2), sub.calls.Load())
}

func TestSubmitReentrancyGuard(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{}), entered: make(chan struct{})}
	f, _, closed := newTestForm(sub)
	fill(t, f, "Family emergency at home")

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	<-sub.entered

	var wg sync.WaitGroup
	var rejected atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(f.Submit(context.Background()), ErrSubmitInFlight) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), rejected.Load())
	assert.ErrorIs(t, f.SetDescription("changed while submitting"), ErrSubmitInFlight)

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, int32(1), closed.Load())
}

func TestCloseDuringSubmitDiscardsResult(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{}), entered: make(chan struct{})}
	f, n, closed := newTestForm(sub)
	fill(t, f, "Religious holiday observance")

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	<-sub.entered

	f.Close()
	select {
	case <-sub.gotCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("submission context not cancelled by Close")
	}
	close(sub.release)

	assert.ErrorIs(t, <-done, ErrFormClosed)
	assert.Equal(t, Closed, f.State())
	assert.Equal(t, int32(1), closed.Load())
	events, _ := n.Recent(context.Background(), 0)
	assert.Empty(t, events)
}

func TestClosedFormRejectsEdits(t *testing.T) {
	f, _, closed := newTestForm(&fakeSubmitter{})
	fill(t, f, "Doctor appointment in town")
	f.Close()
	f.Close()

	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, Request{}, f.Draft())
	assert.ErrorIs(t, f.SetReason(ReasonOther), ErrFormClosed)
	assert.ErrorIs(t, f.Submit(context.Background()), ErrFormClosed)
}

func TestDetach(t *testing.T) {
	f, _, _ := newTestForm(&fakeSubmitter{})
	require.NoError(t, f.Attach(Document{Name: "a"}))
	require.NoError(t, f.Attach(Document{Name: "b"}))
	require.NoError(t, f.Attach(Document{Name: "c"}))

	require.NoError(t, f.Detach(1))
	docs := f.Draft().Documents
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Name)
	assert.Equal(t, "c", docs[1].Name)
	assert.ErrorIs(t, f.Detach(5), ErrNoDocument)
}

func TestAttachLimits(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		doc      Document
		wantErr  bool
	}{
		{name: "first document", doc: Document{Name: "a.pdf", Size: 1024}},
		{name: "last free slot", existing: MaxDocuments - 1, doc: Document{Name: "e.pdf", Size: 1024}},
		{name: "one too many", existing: MaxDocuments, doc: Document{Name: "f.pdf", Size: 1024}, wantErr: true},
		{name: "exactly the size limit", doc: Document{Name: "big.pdf", Size: MaxDocumentSize}},
		{name: "over the size limit", doc: Document{Name: "huge.pdf", Size: MaxDocumentSize + 1}, wantErr: true},
		{name: "data larger than declared size", doc: Document{Name: "liar.pdf", Size: 1, Data: make([]byte, MaxDocumentSize+1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _, _ := newTestForm(&fakeSubmitter{})
			for i := 0; i < tt.existing; i++ {
				require.NoError(t, f.Attach(Document{Name: "doc", Size: 1024}))
			}
			err := f.Attach(tt.doc)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, f.Draft().Documents, tt.existing+1)
				return
			}
			verr, ok := validation.As(err)
			require.True(t, ok, "expected a validation error, got %v", err)
			assert.True(t, verr.Has("documents"))
			assert.Len(t, f.Draft().Documents, tt.existing)
		})
	}
}

func TestAttachStopsAtMaxDocuments(t *testing.T) {
	f, _, _ := newTestForm(&fakeSubmitter{})
	accepted := 0
	for i := 0; i < 200; i++ {
		if f.Attach(Document{Name: "scan.png", Size: 1024}) == nil {
			accepted++
		}
	}
	assert.Equal(t, MaxDocuments, accepted)
	assert.Len(t, f.Draft().Documents, MaxDocuments)
}
