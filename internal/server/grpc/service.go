package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/leroytan/the-website-sub000/internal/server/models"
)

const serviceName = "chat.v1.ChatGateway"

const (
	MethodGetOrCreateChat = "/" + serviceName + "/GetOrCreateChat"
	MethodGetHistory      = "/" + serviceName + "/GetHistory"
	MethodMarkRead        = "/" + serviceName + "/MarkRead"
	MethodSendMessage     = "/" + serviceName + "/SendMessage"
	MethodUnlock          = "/" + serviceName + "/Unlock"
)

type GetOrCreateChatRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type GetOrCreateChatResponse struct {
	ChatID   string `json:"chat_id"`
	IsLocked bool   `json:"is_locked"`
}

type GetHistoryRequest struct {
	ChatID string `json:"chat_id"`
	Before string `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type GetHistoryResponse struct {
	Messages []models.Envelope `json:"messages"`
}

type MarkReadRequest struct {
	ChatID string `json:"chat_id"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type SendMessageRequest struct {
	ChatID      string `json:"chat_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

type SendMessageResponse struct {
	Message models.Envelope `json:"message"`
}

type UnlockRequest struct {
	ChatID string `json:"chat_id"`
}

type UnlockResponse struct {
	ChatID     string     `json:"chat_id"`
	IsLocked   bool       `json:"is_locked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// ChatGatewayServer is the server API of the chat.v1.ChatGateway service.
type ChatGatewayServer interface {
	GetOrCreateChat(context.Context, *GetOrCreateChatRequest) (*GetOrCreateChatResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	Unlock(context.Context, *UnlockRequest) (*UnlockResponse, error)
}

func unaryMethod[Req, Resp any](name string, call func(ChatGatewayServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatGatewayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatGatewayServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ChatGatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChatGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetOrCreateChat", ChatGatewayServer.GetOrCreateChat),
		unaryMethod("GetHistory", ChatGatewayServer.GetHistory),
		unaryMethod("MarkRead", ChatGatewayServer.MarkRead),
		unaryMethod("SendMessage", ChatGatewayServer.SendMessage),
		unaryMethod("Unlock", ChatGatewayServer.Unlock),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chat/v1/gateway",
}

func RegisterChatGatewayServer(s grpc.ServiceRegistrar, srv ChatGatewayServer) {
	s.RegisterService(&ChatGatewayServiceDesc, srv)
}

// ChatGatewayClient calls the service with the JSON codec.
type ChatGatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewChatGatewayClient(cc grpc.ClientConnInterface) *ChatGatewayClient {
	return &ChatGatewayClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatGatewayClient) GetOrCreateChat(ctx context.Context, in *GetOrCreateChatRequest, opts ...grpc.CallOption) (*GetOrCreateChatResponse, error) {
	return invoke[GetOrCreateChatResponse](ctx, c.cc, MethodGetOrCreateChat, in, opts)
}

func (c *ChatGatewayClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	return invoke[GetHistoryResponse](ctx, c.cc, MethodGetHistory, in, opts)
}

func (c *ChatGatewayClient) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, MethodMarkRead, in, opts)
}

func (c *ChatGatewayClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, MethodSendMessage, in, opts)
}

func (c *ChatGatewayClient) Unlock(ctx context.Context, in *UnlockRequest, opts ...grpc.CallOption) (*UnlockResponse, error) {
	return invoke[UnlockResponse](ctx, c.cc, MethodUnlock, in, opts)
}
