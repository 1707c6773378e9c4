package handshake

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

// DefaultUnitSize — рекомендуемый размер задачи (точек на сценарий).
const DefaultUnitSize = 1000

// Negotiator — сторона, которая отвечает на handshake.
//
// Реализации: Client (удалённый сервер по gRPC) и Policy (в процессе).
type Negotiator interface {
	Negotiate(ctx context.Context, workerID string) (domain.HandshakeReply, error)
}

// Policy — правила, по которым сервер принимает worker'ов.
type Policy struct {
	// UnitSize — рекомендуемый размер задачи (default: 1000).
	UnitSize int

	// AllowPrefixes — допустимые префиксы worker_id. Пусто — все.
	AllowPrefixes []string
}

var _ Negotiator = Policy{}

// Negotiate принимает решение по worker_id.
func (p Policy) Negotiate(_ context.Context, workerID string) (domain.HandshakeReply, error) {
	if workerID == "" {
		return domain.HandshakeReply{Accepted: false, Message: "worker_id is required"}, nil
	}

	if len(p.AllowPrefixes) > 0 && !hasAnyPrefix(workerID, p.AllowPrefixes) {
		return domain.HandshakeReply{
			Accepted: false,
			Message:  fmt.Sprintf("worker %s is not allowed", workerID),
		}, nil
	}

	unitSize := p.UnitSize
	if unitSize <= 0 {
		unitSize = DefaultUnitSize
	}

	return domain.HandshakeReply{
		Accepted: true,
		UnitSize: unitSize,
		Message:  fmt.Sprintf("worker %s accepted", workerID),
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, strings.TrimSpace(prefix)) {
			return true
		}
	}
	return false
}

// Server — gRPC сервер handshake.
type Server struct {
	policy Policy
	logger *slog.Logger
	srv    *grpc.Server
}

var _ handshakeService = (*Server)(nil)

// NewServer создаёт сервер и регистрирует сервис.
func NewServer(policy Policy, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		policy: policy,
		logger: logger,
	}

	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor),
	)
	s.srv.RegisterService(&serviceDesc, s)

	return s
}

// Negotiate реализует handshakeService.
func (s *Server) Negotiate(ctx context.Context, req *domain.HandshakeRequest) (*domain.HandshakeReply, error) {
	reply, err := s.policy.Negotiate(ctx, req.WorkerID)
	if err != nil {
		return nil, err
	}

	telemetry.FromContext(ctx).Info("handshake",
		"worker_id", req.WorkerID,
		"accepted", reply.Accepted,
		"unit_size", reply.UnitSize,
	)

	return &reply, nil
}

// loggingInterceptor кладёт logger в context и логирует ошибки вызовов.
func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx = telemetry.WithLogger(ctx, s.logger)

	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("rpc failed",
			"method", info.FullMethod,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
	}
	return resp, err
}

// Serve обслуживает соединения до GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("handshake server listening", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// GracefulStop дожидается завершения активных вызовов.
func (s *Server) GracefulStop() {
	s.srv.GracefulStop()
}
