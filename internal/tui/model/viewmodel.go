package model

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
)

// MaxEvents bounds the in-memory event log.
const MaxEvents = 500

// StalledAge is how old an unprocessed record must be to be listed.
const StalledAge = 5 * time.Minute

// Daemon is the subset of the control API the dashboard reads.
type Daemon interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	ListFilters(ctx context.Context, userID int64) ([]api.Filter, error)
	DisableFilter(ctx context.Context, userID, filterID int64) error
	StalledRecords(ctx context.Context, req *api.StalledRecordsRequest) ([]api.DeliveryRecord, error)
	Watch(ctx context.Context, prefix string, fn func(*api.Event)) error
}

// ViewModel caches daemon state for the views.
type ViewModel struct {
	mu sync.RWMutex

	daemon  Daemon
	status  *api.StatusResponse
	filters []api.Filter
	stalled []api.DeliveryRecord
	events  []api.Event
	Flash   Flash
}

// NewViewModel creates a view model backed by d.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadFilters fetches every active filter.
func (vm *ViewModel) LoadFilters(ctx context.Context) error {
	filters, err := vm.daemon.ListFilters(ctx, 0)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.filters = filters
	vm.mu.Unlock()
	return nil
}

// LoadStalled fetches unprocessed delivery records older than StalledAge.
func (vm *ViewModel) LoadStalled(ctx context.Context) error {
	records, err := vm.daemon.StalledRecords(ctx, &api.StalledRecordsRequest{
		OlderThanMs: StalledAge.Milliseconds(),
		Limit:       200,
	})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.stalled = records
	vm.mu.Unlock()
	return nil
}

// Refresh loads status, filters and stalled records, returning the first error.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	if err := vm.LoadFilters(ctx); err != nil {
		return err
	}
	return vm.LoadStalled(ctx)
}

// DisableFilter disables f and drops it from the cached list.
func (vm *ViewModel) DisableFilter(ctx context.Context, f api.Filter) error {
	if err := vm.daemon.DisableFilter(ctx, f.UserID, f.ID); err != nil {
		return err
	}
	vm.mu.Lock()
	for i, cur := range vm.filters {
		if cur.ID == f.ID {
			vm.filters = append(vm.filters[:i:i], vm.filters[i+1:]...)
			break
		}
	}
	vm.mu.Unlock()
	return nil
}

// Watch streams daemon events into the log until ctx ends or the stream
// fails. onEvent runs after each append.
func (vm *ViewModel) Watch(ctx context.Context, onEvent func(api.Event)) error {
	return vm.daemon.Watch(ctx, "", func(ev *api.Event) {
		vm.AppendEvent(*ev)
		if onEvent != nil {
			onEvent(*ev)
		}
	})
}

// AppendEvent adds ev to the log, evicting the oldest entry past MaxEvents.
func (vm *ViewModel) AppendEvent(ev api.Event) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.events = append(vm.events, ev)
	if n := len(vm.events) - MaxEvents; n > 0 {
		vm.events = append(vm.events[:0:0], vm.events[n:]...)
	}
}

// Status returns the last fetched status, or nil.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Filters returns a snapshot of the cached filters.
func (vm *ViewModel) Filters() []api.Filter {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Filter(nil), vm.filters...)
}

// Stalled returns a snapshot of the cached stalled records.
func (vm *ViewModel) Stalled() []api.DeliveryRecord {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.DeliveryRecord(nil), vm.stalled...)
}

// Events returns a snapshot of the event log, oldest first.
func (vm *ViewModel) Events() []api.Event {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Event(nil), vm.events...)
}
