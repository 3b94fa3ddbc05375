package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"villaops/internal/calendar"
	"villaops/internal/domain"
	"villaops/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	calendarServiceName         = "villaops.calendar.v1.CalendarService"
	calendarListEventsMethod    = "/" + calendarServiceName + "/ListEvents"
	calendarListConflictsMethod = "/" + calendarServiceName + "/ListConflicts"
)

// CalendarServer is the server API of villaops.calendar.v1.CalendarService.
// Requests and responses are google.protobuf.Struct so clients need no
// generated stubs.
type CalendarServer interface {
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCalendarServiceServer registers srv on s.
func RegisterCalendarServiceServer(s grpc.ServiceRegistrar, srv CalendarServer) {
	s.RegisterService(&calendarServiceDesc, srv)
}

var calendarServiceDesc = grpc.ServiceDesc{
	ServiceName: calendarServiceName,
	HandlerType: (*CalendarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListEvents", Handler: calendarListEventsHandler},
		{MethodName: "ListConflicts", Handler: calendarListConflictsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "villaops/calendar/v1/calendar.proto",
}

func calendarListEventsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalendarServer).ListEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: calendarListEventsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalendarServer).ListEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func calendarListConflictsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalendarServer).ListConflicts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: calendarListConflictsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CalendarServer).ListConflicts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CalendarService serves calendar events and conflict records over gRPC.
type CalendarService struct {
	calendar *calendar.Service
	repo     domain.Repository
}

func NewCalendarService(cal *calendar.Service, repo domain.Repository) *CalendarService {
	return &CalendarService{calendar: cal, repo: repo}
}

// ListEvents accepts from, to (YYYY-MM-DD or RFC3339), property_id,
// staff_id and kinds; it responds with {"events": [...]}.
func (s *CalendarService) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	var q calendar.Query
	var err error
	if q.From, err = structTime(fields, "from"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if q.To, err = structTime(fields, "to"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	q.PropertyID = int64(fields["property_id"].GetNumberValue())
	q.StaffID = int64(fields["staff_id"].GetNumberValue())
	for _, v := range fields["kinds"].GetListValue().GetValues() {
		if kind := strings.TrimSpace(v.GetStringValue()); kind != "" {
			q.Kinds = append(q.Kinds, kind)
		}
	}

	evs, err := s.calendar.Events(ctx, q)
	if err != nil {
		return nil, grpcError(err)
	}
	if evs == nil {
		evs = []models.CalendarEvent{}
	}
	return toStruct(map[string]interface{}{"events": evs})
}

// ListConflicts accepts kind and all; unresolved conflicts are returned
// unless all is true.
func (s *CalendarService) ListConflicts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	kind := fields["kind"].GetStringValue()
	if kind != "" && kind != models.ConflictKindBooking && kind != models.ConflictKindStaff {
		return nil, status.Error(codes.InvalidArgument, "kind must be booking or staff")
	}
	list, err := s.repo.ListConflicts(ctx, kind, !fields["all"].GetBoolValue())
	if err != nil {
		return nil, grpcError(err)
	}
	if list == nil {
		list = []*models.Conflict{}
	}
	return toStruct(map[string]interface{}{"conflicts": list})
}

func structTime(fields map[string]*structpb.Value, name string) (t time.Time, err error) {
	raw := strings.TrimSpace(fields[name].GetStringValue())
	if raw == "" {
		return t, nil
	}
	if t, err = parseTime(raw); err != nil {
		return t, fmt.Errorf("invalid %s; expected YYYY-MM-DD or RFC3339", name)
	}
	return t, nil
}

// toStruct converts v through its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}
