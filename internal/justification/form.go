package justification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/metrics"
	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/validation"
)

var (
	ErrFormClosed       = errors.New("justification form is closed")
	ErrSubmitInFlight   = errors.New("a submission is already in progress")
	ErrAlreadySubmitted = errors.New("justification already submitted")
	ErrNoDocument       = errors.New("no document at that position")
)

// SuccessMessage is the notification raised after a successful submission.
const SuccessMessage = "Justification submitted successfully"

// Submitter persists a validated justification.
type Submitter interface {
	SubmitJustification(ctx context.Context, targetID string, req Request) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, targetID string, req Request) error

func (f SubmitterFunc) SubmitJustification(ctx context.Context, targetID string, req Request) error {
	return f(ctx, targetID, req)
}

// SubmissionError wraps any failure returned by the Submitter.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit justification: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

type State int

// Validation runs synchronously inside Submit and is never observable.
// A failed submission returns the form to Idle.
const (
	Idle State = iota
	Submitting
	Succeeded
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Closed:
		return "closed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type FormOptions struct {
	// Owner identifies who may edit the form; empty means anyone.
	Owner     string
	Submitter Submitter
	Notifier  notify.Notifier
	Logger    logging.Logger
	// OnClose runs exactly once, after a successful submission or when the form is closed.
	OnClose func()
}

// Form is the server-side lifecycle of one justification request.
// It allows at most one in-flight submission.
type Form struct {
	ID    string
	Owner string

	mu        sync.Mutex
	draft     Request
	errs      map[string]string
	state     State
	touched   time.Time
	submitter Submitter
	notifier  notify.Notifier
	logger    logging.Logger

	closeOnce sync.Once
	onClose   func()

	// cancelled by Close so an in-flight submit is abandoned
	lifetime context.Context
	cancel   context.CancelFunc
}

// NewForm creates an idle form.
func NewForm(id string, opts FormOptions) *Form {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Func(func(context.Context, notify.Event) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Form{
		ID:        id,
		Owner:     opts.Owner,
		touched:   time.Now(),
		submitter: opts.Submitter,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		onClose:   opts.OnClose,
		lifetime:  ctx,
		cancel:    cancel,
	}
}

// Snapshot is a read-only view of the form.
type Snapshot struct {
	ID          string            `json:"form_id"`
	State       State             `json:"state"`
	TargetID    string            `json:"target_id"`
	Reason      Reason            `json:"reason"`
	Description string            `json:"description"`
	Documents   []Document        `json:"documents"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// Snapshot copies the form state under its lock.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := make(map[string]string, len(f.errs))
	for k, v := range f.errs {
		errs[k] = v
	}
	d := f.draft.clone()
	return Snapshot{
		ID:          f.ID,
		State:       f.state,
		TargetID:    d.TargetID,
		Reason:      d.Reason,
		Description: d.Description,
		Documents:   d.Documents,
		Errors:      errs,
	}
}

// OwnedBy reports whether subject may act on the form.
func (f *Form) OwnedBy(subject string) bool {
	return f.Owner == "" || f.Owner == subject
}

// State returns the current lifecycle state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Draft returns a copy of the current field values.
func (f *Form) Draft() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.clone()
}

// LastTouched is the time of the last edit or submit attempt.
func (f *Form) LastTouched() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched
}

func (f *Form) editable() error {
	switch f.state {
	case Closed:
		return ErrFormClosed
	case Submitting:
		return ErrSubmitInFlight
	case Succeeded:
		return ErrAlreadySubmitted
	}
	return nil
}

func (f *Form) edit(fn func(r *Request) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable(); err != nil {
		return err
	}
	f.touched = time.Now()
	return fn(&f.draft)
}

// SetTarget sets the attendance record being justified.
func (f *Form) SetTarget(id string) error {
	return f.edit(func(r *Request) error { r.TargetID = id; return nil })
}

// SetReason sets the absence category.
func (f *Form) SetReason(reason Reason) error {
	return f.edit(func(r *Request) error { r.Reason = reason; return nil })
}

// SetDescription sets the free-text explanation.
func (f *Form) SetDescription(desc string) error {
	return f.edit(func(r *Request) error { r.Description = desc; return nil })
}

// Attach adds doc to the draft. It returns a *validation.Error once MaxDocuments are
// attached or when doc exceeds MaxDocumentSize; content types are checked on Submit.
func (f *Form) Attach(doc Document) error {
	return f.edit(func(r *Request) error {
		if err := checkAttach(len(r.Documents), doc); err != nil {
			return err
		}
		r.Documents = append(r.Documents, doc)
		return nil
	})
}

// Detach removes the document at position i.
func (f *Form) Detach(i int) error {
	return f.edit(func(r *Request) error {
		if i < 0 || i >= len(r.Documents) {
			return ErrNoDocument
		}
		r.Documents = append(r.Documents[:i:i], r.Documents[i+1:]...)
		return nil
	})
}

// Submit validates the draft and hands it to the Submitter exactly once.
//
// Validation failures return a *validation.Error and never reach the Submitter.
// Submitter failures are logged, leave the draft untouched and return a *SubmissionError.
// If the form is closed while the Submitter runs, its result is discarded.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if err := f.editable(); err != nil {
		f.mu.Unlock()
		if errors.Is(err, ErrSubmitInFlight) {
			metrics.Submissions.WithLabelValues("rejected_in_flight").Inc()
		}
		return err
	}
	f.touched = time.Now()
	req := f.draft.clone()
	if err := req.Validate(); err != nil {
		if verr, ok := validation.As(err); ok {
			f.errs = verr.Map()
		}
		f.mu.Unlock()
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return err
	}
	f.errs = nil
	f.state = Submitting
	f.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.lifetime, cancel)
	start := time.Now()
	err := f.submitter.SubmitJustification(subCtx, req.TargetID, req)
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	stop()
	cancel()

	f.mu.Lock()
	if f.state == Closed {
		f.mu.Unlock()
		metrics.Submissions.WithLabelValues("discarded").Inc()
		f.logger.Debug("justification result discarded after close", map[string]interface{}{"form_id": f.ID, "error": err})
		return ErrFormClosed
	}
	if err != nil {
		f.state = Idle
		f.mu.Unlock()
		metrics.Submissions.WithLabelValues("failed").Inc()
		f.logger.Error("justification submission failed", err, map[string]interface{}{"form_id": f.ID, "target_id": req.TargetID})
		return &SubmissionError{Err: err}
	}
	f.state = Succeeded
	f.draft = Request{}
	f.mu.Unlock()

	metrics.Submissions.WithLabelValues("succeeded").Inc()
	f.notifier.Notify(context.WithoutCancel(ctx), notify.Event{Message: SuccessMessage, Type: notify.Success})
	f.fireClose()
	f.cancel()
	return nil
}

// Close discards the draft and abandons any in-flight submission. Safe to call repeatedly.
func (f *Form) Close() {
	f.mu.Lock()
	if f.state == Closed {
		f.mu.Unlock()
		return
	}
	f.state = Closed
	f.draft = Request{}
	f.errs = nil
	f.mu.Unlock()

	f.cancel()
	f.fireClose()
}

func (f *Form) fireClose() {
	f.closeOnce.Do(func() {
		if f.onClose != nil {
			f.onClose()
		}
	})
}
