package api

import (
	"context"

	"google.golang.org/grpc"
)

// Service names.
const (
	SessionServiceName = "rentchat.v1.SessionService"
	ChatServiceName    = "rentchat.v1.ChatService"
)

// SessionServer is the server API of rentchat.v1.SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	ListPresence(context.Context, *Empty) (*PresenceResponse, error)
}

// ChatServer is the server API of rentchat.v1.ChatService.
type ChatServer interface {
	ListConversations(context.Context, *ListConversationsRequest) (*ConversationsResponse, error)
	ListMessages(context.Context, *ConversationRef) (*MessagesResponse, error)
	History(context.Context, *HistoryRequest) (*MessagesResponse, error)
	SearchMessages(context.Context, *SearchRequest) (*SearchResponse, error)
	SendText(context.Context, *SendRequest) (*SendResponse, error)
	SendFallback(context.Context, *SendRequest) (*SendResponse, error)
	Retry(context.Context, *TempRef) (*Empty, error)
	Discard(context.Context, *TempRef) (*Empty, error)
	ListPending(context.Context, *Empty) (*PendingResponse, error)
	Join(context.Context, *ConversationRef) (*Empty, error)
	Leave(context.Context, *ConversationRef) (*Empty, error)
	MarkRead(context.Context, *ConversationRef) (*MarkReadResponse, error)
	Keystroke(context.Context, *ConversationRef) (*Empty, error)
	ListTyping(context.Context, *ConversationRef) (*TypingResponse, error)
	WatchEvents(*WatchRequest, EventSender) error
}

// EventSender is the server side of a WatchEvents stream.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary adapts a typed method to grpc.MethodHandler.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(service, method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

// SessionServiceDesc describes rentchat.v1.SessionService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "ListPresence", SessionServer.ListPresence),
	},
	Metadata: "rentchat/v1/session",
}

// ChatServiceDesc describes rentchat.v1.ChatService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListConversations", ChatServer.ListConversations),
		unary(ChatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(ChatServiceName, "History", ChatServer.History),
		unary(ChatServiceName, "SearchMessages", ChatServer.SearchMessages),
		unary(ChatServiceName, "SendText", ChatServer.SendText),
		unary(ChatServiceName, "SendFallback", ChatServer.SendFallback),
		unary(ChatServiceName, "Retry", ChatServer.Retry),
		unary(ChatServiceName, "Discard", ChatServer.Discard),
		unary(ChatServiceName, "ListPending", ChatServer.ListPending),
		unary(ChatServiceName, "Join", ChatServer.Join),
		unary(ChatServiceName, "Leave", ChatServer.Leave),
		unary(ChatServiceName, "MarkRead", ChatServer.MarkRead),
		unary(ChatServiceName, "Keystroke", ChatServer.Keystroke),
		unary(ChatServiceName, "ListTyping", ChatServer.ListTyping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rentchat/v1/chat",
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).WatchEvents(in, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *Event) error {
	return s.ServerStream.SendMsg(e)
}

// Register installs both services on srv.
func Register(srv grpc.ServiceRegistrar, session SessionServer, chat ChatServer) {
	srv.RegisterService(&SessionServiceDesc, session)
	srv.RegisterService(&ChatServiceDesc, chat)
}
