package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/contract-analyzer/internal/common"
	"github.com/joseph-ayodele/contract-analyzer/internal/service"
)

// DocumentServiceName is the fully qualified gRPC service name.
const DocumentServiceName = "contractanalyzer.v1.DocumentService"

// DocumentServer is the gRPC surface of the document service. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type DocumentServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Retry(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// NewGRPCServer builds a server with health, reflection and the document service registered.
func NewGRPCServer(svc *service.Service, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(DocumentServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	RegisterDocumentServer(grpcServer, NewDocumentService(svc, logger))
	return grpcServer
}

// DocumentService adapts service.Service to DocumentServer.
type DocumentService struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewDocumentService(svc *service.Service, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{svc: svc, logger: logger}
}

// Submit expects owner_ref, filename and content_base64.
func (d *DocumentService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	content, err := base64.StdEncoding.DecodeString(field(in, "content_base64"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "content_base64 must be base64")
	}
	id, err := d.svc.Submit(ctx, service.SubmitRequest{
		OwnerRef: field(in, "owner_ref"),
		Filename: field(in, "filename"),
		Content:  content,
	})
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id.String()})
}

func (d *DocumentService) Status(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(in)
	if err != nil {
		return nil, err
	}
	view, err := d.svc.Status(id)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	return toStruct(view)
}

func (d *DocumentService) Retry(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(in)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Retry(ctx, id); err != nil {
		return nil, common.GRPCStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id.String()})
}

func (d *DocumentService) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := jobID(in)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Delete(ctx, id); err != nil {
		return nil, common.GRPCStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (d *DocumentService) List(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner := field(in, "owner_ref")
	if owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner_ref is required")
	}
	return toStruct(map[string]any{"documents": d.svc.List(owner)})
}

func field(in *structpb.Struct, name string) string {
	if in == nil {
		return ""
	}
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

func jobID(in *structpb.Struct) (uuid.UUID, error) {
	raw := field(in, "job_id")
	if raw == "" {
		return uuid.Nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "job_id must be a UUID")
	}
	return id, nil
}

// toStruct converts a JSON-tagged value into a Struct via its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc.request.failed", "method", info.FullMethod, "code", status.Code(err).String())
		} else {
			logger.Debug("grpc.request", "method", info.FullMethod)
		}
		return resp, err
	}
}

// RegisterDocumentServer registers srv under DocumentServiceName.
func RegisterDocumentServer(s grpc.ServiceRegistrar, srv DocumentServer) {
	s.RegisterService(&documentServiceDesc, srv)
}

func unaryHandler(method string, call func(DocumentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + DocumentServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DocumentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(DocumentServer), ctx, req.(*structpb.Struct))
		})
	}
}

var documentServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentServiceName,
	HandlerType: (*DocumentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler("Submit", DocumentServer.Submit)},
		{MethodName: "Status", Handler: unaryHandler("Status", DocumentServer.Status)},
		{MethodName: "Retry", Handler: unaryHandler("Retry", DocumentServer.Retry)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", DocumentServer.Delete)},
		{MethodName: "List", Handler: unaryHandler("List", DocumentServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "contractanalyzer/v1/document.proto",
}
