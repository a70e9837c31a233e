package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kyc-extractor/internal/repository"
)

const (
	AnalysisServiceName = "kyc.v1.AnalysisService"

	analyzeMethod     = "/kyc.v1.AnalysisService/Analyze"
	getAnalysisMethod = "/kyc.v1.AnalysisService/GetAnalysis"
)

// Analyzer runs one document through the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, doc pipeline.Document) (*pipeline.Result, error)
}

// AnalysisServiceServer is the server API for kyc.v1.AnalysisService. Requests and
// responses are google.protobuf.Struct so no generated stubs are needed.
//
// Analyze expects {document_name, image_base64 | text, narrative, credential}.
type AnalysisServiceServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAnalysis(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func RegisterAnalysisServiceServer(s grpc.ServiceRegistrar, srv AnalysisServiceServer) {
	s.RegisterService(&AnalysisService_ServiceDesc, srv)
}

func _AnalysisService_Analyze_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServiceServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServiceServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _AnalysisService_GetAnalysis_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServiceServer).GetAnalysis(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getAnalysisMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServiceServer).GetAnalysis(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var AnalysisService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalysisServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: _AnalysisService_Analyze_Handler},
		{MethodName: "GetAnalysis", Handler: _AnalysisService_GetAnalysis_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kyc/v1/analysis.proto",
}

// AnalysisServiceClient is the client API for kyc.v1.AnalysisService.
type AnalysisServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalysisServiceClient(cc grpc.ClientConnInterface) *AnalysisServiceClient {
	return &AnalysisServiceClient{cc: cc}
}

func (c *AnalysisServiceClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AnalysisServiceClient) GetAnalysis(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getAnalysisMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalysisServer implements AnalysisServiceServer on top of the analyzer and journal.
type AnalysisServer struct {
	analyzer Analyzer
	journal  repository.AnalysisRepository
	logger   *slog.Logger
}

func NewAnalysisServer(analyzer Analyzer, journal repository.AnalysisRepository, logger *slog.Logger) *AnalysisServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisServer{analyzer: analyzer, journal: journal, logger: logger}
}

func (s *AnalysisServer) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	doc := pipeline.Document{
		Name:       strings.TrimSpace(fields["document_name"].GetStringValue()),
		Text:       fields["text"].GetStringValue(),
		Narrative:  fields["narrative"].GetBoolValue(),
		Credential: fields["credential"].GetStringValue(),
	}
	if b64 := fields["image_base64"].GetStringValue(); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, common.InvalidArgumentError("image_base64 is not valid base64")
		}
		doc.Data = data
	}
	if doc.Name == "" {
		return nil, common.InvalidArgumentError("document_name is required")
	}
	if len(doc.Data) == 0 && strings.TrimSpace(doc.Text) == "" {
		return nil, common.InvalidArgumentError("image_base64 or text is required")
	}

	res, err := s.analyzer.Analyze(ctx, doc)
	if err != nil {
		s.logger.Warn("grpc.analyze.failed", "document", doc.Name, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(viewFromResult(res))
}

func (s *AnalysisServer) GetAnalysis(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetValue())
	if err := common.ValidateAndReturnError(common.NewValidator().Field("id", id, common.Required, common.UUID)); err != nil {
		return nil, err
	}
	if s.journal == nil {
		return nil, status.Error(codes.Unavailable, "analysis journal disabled")
	}
	a, err := s.journal.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(viewFromAnalysis(a))
}

func toStruct(v AnalysisView) (*structpb.Struct, error) {
	raw, err := v.JSON()
	if err != nil {
		return nil, common.InternalError("encode analysis")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, common.InternalError("encode analysis")
	}
	return out, nil
}

// UnaryLogging tags each call with a request id (from x-request-id metadata when
// present) and logs its outcome.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, reqID := common.EnsureRequestID(ctx)
		ctx = common.WithLogger(ctx, logger.With("req_id", reqID))

		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"req_id", reqID,
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer builds a server with the analysis service, health and reflection.
func NewGRPCServer(svc AnalysisServiceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryLogging(logger))}, opts...)
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AnalysisServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)

	RegisterAnalysisServiceServer(gs, svc)
	return gs, hs
}
