// Package api serves and consumes the daemon's Control service.
package api

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/tgfilter/internal/bus"
	"github.com/matheus3301/tgfilter/internal/matcher"
	"github.com/matheus3301/tgfilter/internal/pipeline"
	"github.com/matheus3301/tgfilter/internal/status"
	"github.com/matheus3301/tgfilter/internal/store"
	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultStalledAge = 5 * time.Minute

// Depth reports queue occupancy.
type Depth interface {
	Len() int
	Cap() int
}

// Sources are the runtime readings reported by Status. Any field may be nil.
type Sources struct {
	Inbound  Depth
	Outbound Depth
	Pipeline func() pipeline.Stats
	Stalled  func() int
}

// ControlService implements the Control gRPC service.
type ControlService struct {
	instance  string
	startedAt time.Time
	db        *store.DB
	machine   *status.Machine
	bus       *bus.Bus
	src       Sources

	closeOnce sync.Once
	closed    chan struct{}
}

// NewControlService creates a control service backed by the store.
func NewControlService(instance string, db *store.DB, machine *status.Machine, b *bus.Bus, src Sources) *ControlService {
	return &ControlService{
		instance:  instance,
		startedAt: time.Now(),
		db:        db,
		machine:   machine,
		bus:       b,
		src:       src,
		closed:    make(chan struct{}),
	}
}

// Close ends all open Watch streams.
func (s *ControlService) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *ControlService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	current := s.machine.Current()
	resp := &StatusResponse{
		Instance:      s.instance,
		State:         string(current),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		Inbound:       depth(s.src.Inbound),
		Outbound:      depth(s.src.Outbound),
		EventsDropped: s.bus.Dropped(),
	}
	if s.src.Pipeline != nil {
		resp.Pipeline = PipelineCounters(s.src.Pipeline())
	}
	if s.src.Stalled != nil {
		resp.LastStalled = s.src.Stalled()
	}
	// Store counts are best effort; a failure is reported, not hidden as zeros.
	n, err := s.db.MessageCount()
	if err != nil {
		resp.StoreError = "message count: " + err.Error()
		return resp, nil
	}
	resp.MessageCount = n
	counts, err := s.db.CountDeliveries()
	if err != nil {
		resp.StoreError = "delivery counts: " + err.Error()
		return resp, nil
	}
	resp.Processed = counts.Processed
	resp.Pending = counts.Pending
	return resp, nil
}

func (s *ControlService) AddFilter(_ context.Context, req *AddFilterRequest) (*AddFilterResponse, error) {
	if req.UserID == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id is required")
	}
	if err := matcher.Validate(req.Pattern); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "invalid pattern %q: %v", req.Pattern, err)
	}
	f, err := s.db.AddFilter(req.UserID, req.Pattern)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "add filter: %v", err)
	}
	return &AddFilterResponse{Filter: filterOut(*f)}, nil
}

func (s *ControlService) DisableFilter(_ context.Context, req *DisableFilterRequest) (*DisableFilterResponse, error) {
	ok, err := s.db.DisableFilter(req.UserID, req.FilterID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "disable filter: %v", err)
	}
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "active filter %d of user %d not found", req.FilterID, req.UserID)
	}
	return &DisableFilterResponse{Disabled: true}, nil
}

// ListFilters returns the active filters of one user, or every active
// filter when UserID is zero.
func (s *ControlService) ListFilters(_ context.Context, req *ListFiltersRequest) (*ListFiltersResponse, error) {
	var (
		filters []store.Filter
		err     error
	)
	if req.UserID != 0 {
		filters, err = s.db.UserFilters(req.UserID)
	} else {
		filters, err = s.db.ActiveFilters()
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list filters: %v", err)
	}
	return &ListFiltersResponse{Filters: lo.Map(filters, func(f store.Filter, _ int) Filter {
		return filterOut(f)
	})}, nil
}

func (s *ControlService) UpsertBinding(_ context.Context, req *UpsertBindingRequest) (*UpsertBindingResponse, error) {
	d := req.Destination
	if d.UserID == 0 || d.ChatID == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user_id and chat_id are required")
	}
	if err := s.db.UpsertBinding(&store.Destination{
		UserID:      d.UserID,
		ChatID:      d.ChatID,
		DisplayName: d.DisplayName,
		Username:    d.Username,
		Locale:      d.Locale,
	}); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "upsert binding: %v", err)
	}
	return &UpsertBindingResponse{}, nil
}

func (s *ControlService) SetUserStatus(_ context.Context, req *SetUserStatusRequest) (*SetUserStatusResponse, error) {
	st := store.StatusInactive
	if req.Active {
		st = store.StatusActive
	}
	ok, err := s.db.SetUserStatus(req.UserID, st)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "set user status: %v", err)
	}
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "user %d not found", req.UserID)
	}
	return &SetUserStatusResponse{Updated: true}, nil
}

func (s *ControlService) StalledRecords(_ context.Context, req *StalledRecordsRequest) (*StalledRecordsResponse, error) {
	age := defaultStalledAge
	if req.OlderThanMs > 0 {
		age = time.Duration(req.OlderThanMs) * time.Millisecond
	}
	recs, err := s.db.StalledRecords(time.Now().Add(-age), req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "stalled records: %v", err)
	}
	return &StalledRecordsResponse{Records: lo.Map(recs, func(r store.DeliveryRecord, _ int) DeliveryRecord {
		return DeliveryRecord{UserID: r.UserID, ChannelID: r.ChannelID, MessageID: r.MessageID, CreatedAtMs: r.CreatedAt}
	})}, nil
}

// Watch streams bus events until ctx ends, send fails or the service is
// closed.
func (s *ControlService) Watch(ctx context.Context, req *WatchRequest, send func(*Event) error) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := send(&Event{
				ID:           evt.ID,
				Kind:         evt.Kind,
				OccurredAtMs: evt.Timestamp.UnixMilli(),
				Fields:       evt.Fields,
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		}
	}
}

func depth(d Depth) QueueDepth {
	if d == nil {
		return QueueDepth{}
	}
	return QueueDepth{Len: d.Len(), Cap: d.Cap()}
}

func filterOut(f store.Filter) Filter {
	return Filter{
		ID:          f.ID,
		UserID:      f.UserID,
		Pattern:     f.Pattern,
		Status:      string(f.Status),
		CreatedAtMs: f.CreatedAt,
	}
}
