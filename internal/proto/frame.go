package proto

import "encoding/json"

// Frame is the envelope exchanged over the push channel. The broker speaks a
// subscribe/publish protocol: the client connects with a bearer credential,
// subscribes to topic destinations, and publishes to application destinations.
type Frame struct {
	Type        string            `json:"type"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	Error       *Error            `json:"error,omitempty"`
}

const (
	FrameConnect   = "connect"
	FrameConnected = "connected"
	FrameSubscribe = "subscribe"
	FrameSend      = "send"
	FrameMessage   = "message"
	FrameError     = "error"
)

// Broadcast and publish destinations for the community feed.
const (
	TopicCommunity    = "/topic/community"
	DestCommunitySend = "/app/community/message"
)

// AuthorizationHeader is the connect-frame header carrying the bearer token.
const AuthorizationHeader = "Authorization"

// SendBody is the payload published on DestCommunitySend.
type SendBody struct {
	Content string `json:"content"`
}

// Error describes a protocol-level error frame.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ConnectFrame builds the opening frame for a session.
func ConnectFrame(token string) Frame {
	return Frame{
		Type:    FrameConnect,
		Headers: map[string]string{AuthorizationHeader: "Bearer " + token},
	}
}

// SubscribeFrame requests delivery of a broadcast destination.
func SubscribeFrame(topic string) Frame {
	return Frame{Type: FrameSubscribe, Destination: topic}
}

// SendFrame publishes a payload to an application destination.
func SendFrame(destination string, body any) (Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameSend, Destination: destination, Body: raw}, nil
}
