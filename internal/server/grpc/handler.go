package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/leroytan/the-website-sub000/internal/common"
	"github.com/leroytan/the-website-sub000/internal/server/models"
)

// toStatus maps application errors to gRPC status codes. Uncoded errors are
// logged and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	code := common.CodeOf(err)
	switch code {
	case common.CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case common.CodePermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case common.CodeInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case common.CodeUnauthenticated:
		return status.Error(codes.Unauthenticated, err.Error())
	case common.CodeUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) GetOrCreateChat(ctx context.Context, req *GetOrCreateChatRequest) (*GetOrCreateChatResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	chat, err := s.chats.GetOrCreateChat(ctx, userID, req.CounterpartID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &GetOrCreateChatResponse{ChatID: chat.ID, IsLocked: chat.Locked}, nil
}

func (s *GRPCServer) GetHistory(ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.chats.GetHistory(ctx, req.ChatID, userID, req.Before, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &GetHistoryResponse{Messages: msgs}, nil
}

func (s *GRPCServer) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.chats.MarkRead(ctx, req.ChatID, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &MarkReadResponse{Updated: n}, nil
}

func (s *GRPCServer) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	userID, err := userIDFrom(ctx)
	if err != nil {
		return nil, err
	}

	msgType, ok := models.ParseMessageType(req.MessageType)
	if !ok {
		return nil, s.toStatus(ctx, common.ErrUnknownMsgType)
	}

	msg, err := s.chats.Send(ctx, req.ChatID, userID, req.Content, msgType)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &SendMessageResponse{Message: msg.EnvelopeFor(userID)}, nil
}

func (s *GRPCServer) Unlock(ctx context.Context, req *UnlockRequest) (*UnlockResponse, error) {
	chat, err := s.chats.Unlock(ctx, req.ChatID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "chat unlocked", "chat_id", chat.ID)
	return &UnlockResponse{ChatID: chat.ID, IsLocked: chat.Locked, UnlockedAt: chat.UnlockedAt}, nil
}
