package justification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/metrics"
	"github.com/iancossa/attendance-fullstack/internal/notify"
)

var ErrFormNotFound = errors.New("justification form not found")

// Registry holds open forms so a client can edit and submit across requests.
// Forms idle longer than the TTL are closed by Sweep.
type Registry struct {
	mu        sync.Mutex
	forms     map[string]*Form
	ttl       time.Duration
	submitter Submitter
	notifier  notify.Notifier
	logger    logging.Logger
}

// NewRegistry creates an empty registry. A nil logger discards.
func NewRegistry(submitter Submitter, notifier notify.Notifier, logger logging.Logger, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		forms:     make(map[string]*Form),
		ttl:       ttl,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger,
	}
}

// Open creates a form for owner; it leaves the registry when it succeeds or closes.
func (r *Registry) Open(owner string) *Form {
	id := uuid.NewString()
	f := NewForm(id, FormOptions{
		Owner:     owner,
		Submitter: r.submitter,
		Notifier:  r.notifier,
		Logger:    r.logger,
		OnClose:   func() { r.remove(id) },
	})
	r.mu.Lock()
	r.forms[id] = f
	metrics.OpenForms.Set(float64(len(r.forms)))
	r.mu.Unlock()
	return f
}

// Get returns the open form with the given id.
func (r *Registry) Get(id string) (*Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		return nil, ErrFormNotFound
	}
	return f, nil
}

// Close closes and forgets the form.
func (r *Registry) Close(id string) error {
	f, err := r.Get(id)
	if err != nil {
		return err
	}
	f.Close()
	return nil
}

// Len counts open forms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.forms, id)
	metrics.OpenForms.Set(float64(len(r.forms)))
	r.mu.Unlock()
}

// Sweep closes idle forms that are not submitting and returns how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var stale []*Form
	for _, f := range r.forms {
		if now.Sub(f.LastTouched()) > r.ttl && f.State() != Submitting {
			stale = append(stale, f)
		}
	}
	r.mu.Unlock()

	for _, f := range stale {
		f.Close()
	}
	if len(stale) > 0 {
		r.logger.Debug("closed idle justification forms", map[string]interface{}{"count": len(stale)})
	}
	return len(stale)
}

// Run sweeps on every interval until ctx is done, then closes every form.
// A non-positive interval sweeps once a minute.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	forms := make([]*Form, 0, len(r.forms))
	for _, f := range r.forms {
		forms = append(forms, f)
	}
	r.mu.Unlock()
	for _, f := range forms {
		f.Close()
	}
}
