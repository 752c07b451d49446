// Package grpc exposes the chat gateway over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/leroytan/the-website-sub000/internal/logging"
	"github.com/leroytan/the-website-sub000/internal/server/models"
)

// ChatGateway is the service layer behind the RPCs; *services.ChatService
// implements it.
type ChatGateway interface {
	GetOrCreateChat(ctx context.Context, a, b string) (*models.Chat, error)
	GetHistory(ctx context.Context, chatID, viewerID, before string, limit int) ([]models.Envelope, error)
	MarkRead(ctx context.Context, chatID, viewerID string) (int64, error)
	Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (*models.Message, error)
	Unlock(ctx context.Context, chatID string) (*models.Chat, error)
}

type TokenVerifier interface {
	UserID(token string) (string, error)
}

type GRPCServer struct {
	address     string
	chats       ChatGateway
	verifier    TokenVerifier
	internalKey []byte
	logger      logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, chats ChatGateway, verifier TokenVerifier, internalKey string) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		chats:       chats,
		verifier:    verifier,
		internalKey: []byte(internalKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.authInterceptor))
	RegisterChatGatewayServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn(ctx, "rpc failed", "method", info.FullMethod, "latency", time.Since(start).String(), "error", err)
	} else {
		s.logger.Debug(ctx, "rpc completed", "method", info.FullMethod, "latency", time.Since(start).String())
	}
	return resp, err
}
