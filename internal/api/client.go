package api

import (
	"context"

	"google.golang.org/grpc"
)

// CallOption selects the CBOR codec; clients must dial with
// grpc.WithDefaultCallOptions(api.CallOption()).
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, fullMethod(service, method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient is the client API of rentchat.v1.SessionService.
type SessionClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func (c *SessionClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", &Empty{}, opts)
}

func (c *SessionClient) ListPresence(ctx context.Context, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, SessionServiceName, "ListPresence", &Empty{}, opts)
}

// ChatClient is the client API of rentchat.v1.ChatService.
type ChatClient struct {
	cc grpc.ClientConnInterface
}

func NewChatClient(cc grpc.ClientConnInterface) *ChatClient {
	return &ChatClient{cc: cc}
}

func (c *ChatClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ConversationsResponse, error) {
	return invoke[ConversationsResponse](ctx, c.cc, ChatServiceName, "ListConversations", in, opts)
}

func (c *ChatClient) ListMessages(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatServiceName, "ListMessages", in, opts)
}

func (c *ChatClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatServiceName, "History", in, opts)
}

func (c *ChatClient) SearchMessages(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c.cc, ChatServiceName, "SearchMessages", in, opts)
}

func (c *ChatClient) SendText(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, ChatServiceName, "SendText", in, opts)
}

func (c *ChatClient) SendFallback(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, ChatServiceName, "SendFallback", in, opts)
}

func (c *ChatClient) Retry(ctx context.Context, in *TempRef, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Retry", in, opts)
	return err
}

func (c *ChatClient) Discard(ctx context.Context, in *TempRef, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Discard", in, opts)
	return err
}

func (c *ChatClient) ListPending(ctx context.Context, opts ...grpc.CallOption) (*PendingResponse, error) {
	return invoke[PendingResponse](ctx, c.cc, ChatServiceName, "ListPending", &Empty{}, opts)
}

func (c *ChatClient) Join(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Join", in, opts)
	return err
}

func (c *ChatClient) Leave(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Leave", in, opts)
	return err
}

func (c *ChatClient) MarkRead(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, ChatServiceName, "MarkRead", in, opts)
}

func (c *ChatClient) Keystroke(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, ChatServiceName, "Keystroke", in, opts)
	return err
}

func (c *ChatClient) ListTyping(ctx context.Context, in *ConversationRef, opts ...grpc.CallOption) (*TypingResponse, error) {
	return invoke[TypingResponse](ctx, c.cc, ChatServiceName, "ListTyping", in, opts)
}

// EventStream is the client side of WatchEvents.
type EventStream struct {
	grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*Event, error) {
	e := new(Event)
	if err := s.ClientStream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *ChatClient) WatchEvents(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &ChatServiceDesc.Streams[0], fullMethod(ChatServiceName, "WatchEvents"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream}, nil
}
