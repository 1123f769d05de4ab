package journal

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/airlink/internal/appliance"
)

const defaultRecordTimeout = 2 * time.Second

// Recorder turns appliance callbacks into journal entries.
//
// It keeps the last set of active faults so that each CURRENT-FAULTS
// message produces one entry per fault raised, changed, or cleared.
type Recorder struct {
	repo    Repository
	serial  string
	logger  appliance.Logger
	timeout time.Duration

	mu     sync.Mutex
	active map[string]string // fault code -> value
}

// NewRecorder creates a recorder writing entries for one appliance serial.
func NewRecorder(repo Repository, serial string) *Recorder {
	return &Recorder{
		repo:    repo,
		serial:  serial,
		logger:  nopLogger{},
		timeout: defaultRecordTimeout,
		active:  make(map[string]string),
	}
}

// SetLogger sets the logger used for write failures.
func (r *Recorder) SetLogger(logger appliance.Logger) {
	r.logger = logger
}

// Attach registers the recorder on dev and returns a function that removes it.
func (r *Recorder) Attach(dev *appliance.Device) (detach func()) {
	statusID := dev.AddStatusCallback(r.OnStatus)
	msgID := dev.AddMessageCallback(func(_ string, msg appliance.Message) {
		if msg.Type() == appliance.MsgCurrentFaults {
			r.OnFaults(dev.Faults())
		}
	})

	return func() {
		dev.RemoveStatusCallback(statusID)
		dev.RemoveMessageCallback(msgID)
	}
}

// OnStatus records a connection transition.
func (r *Recorder) OnStatus(ev appliance.ConnectionEvent) {
	detail := ""
	if ev.Fallback {
		detail = "fallback"
	}
	r.record(Entry{
		Kind:      KindConnection,
		Subject:   string(ev.Current),
		Previous:  string(ev.Previous),
		Current:   string(ev.Current),
		Detail:    detail,
		CreatedAt: ev.Time,
	})
}

// OnFaults diffs the active faults against the last call and records the
// differences.
func (r *Recorder) OnFaults(faults []appliance.Fault) {
	now := time.Now()
	next := make(map[string]string, len(faults))

	r.mu.Lock()
	var entries []Entry
	for _, f := range faults {
		next[f.Code] = f.Value
		if prev, ok := r.active[f.Code]; !ok || prev != f.Value {
			entries = append(entries, Entry{
				Kind:      KindFaultRaised,
				Subject:   f.Code,
				Previous:  prev,
				Current:   f.Value,
				Detail:    f.Description,
				CreatedAt: now,
			})
		}
	}
	for code, prev := range r.active {
		if _, ok := next[code]; !ok {
			entries = append(entries, Entry{
				Kind:      KindFaultCleared,
				Subject:   code,
				Previous:  prev,
				CreatedAt: now,
			})
		}
	}
	r.active = next
	r.mu.Unlock()

	for _, e := range entries {
		r.record(e)
	}
}

// Active returns a copy of the faults the recorder last saw.
func (r *Recorder) Active() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.active)
}

func (r *Recorder) record(e Entry) {
	e.Serial = r.serial

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.Record(ctx, e); err != nil {
		r.logger.Error("journal write failed", "kind", e.Kind, "subject", e.Subject, "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
