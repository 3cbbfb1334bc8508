package obsws

import (
	"encoding/json"
	"fmt"
)

// OpCode identifies the payload carried in the "d" field of a frame.
type OpCode int

const (
	OpHello           OpCode = 0
	OpIdentify        OpCode = 1
	OpIdentified      OpCode = 2
	OpEvent           OpCode = 5
	OpRequest         OpCode = 6
	OpRequestResponse OpCode = 7
)

// RPCVersion is the obs-websocket RPC version this client speaks.
const RPCVersion = 1

// Status codes returned in requestStatus.code that the client cares about.
const (
	StatusSuccess               = 100
	StatusResourceAlreadyExists = 601
)

// Close codes the remote uses to terminate a handshake.
const (
	CloseNotIdentified        = 4007
	CloseAuthenticationFailed = 4009
)

// Frame is one decoded inbound message. The concrete type is selected by op.
type Frame interface {
	Op() OpCode
}

// envelope is the wire shape shared by every frame.
type envelope struct {
	Op OpCode          `json:"op"`
	D  json.RawMessage `json:"d"`
}

// AuthChallenge is the optional authentication block of a Hello frame.
type AuthChallenge struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

// Hello is sent by the remote as soon as the socket opens.
type Hello struct {
	OBSWebSocketVersion string         `json:"obsWebSocketVersion"`
	RPCVersion          int            `json:"rpcVersion"`
	Authentication      *AuthChallenge `json:"authentication,omitempty"`
}

func (Hello) Op() OpCode { return OpHello }

// Identify answers Hello. Authentication is empty when no challenge was sent.
type Identify struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions *int   `json:"eventSubscriptions,omitempty"`
}

func (Identify) Op() OpCode { return OpIdentify }

// Identified confirms the handshake.
type Identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

func (Identified) Op() OpCode { return OpIdentified }

// Event is an unsolicited notification. The client does not subscribe to any
// but tolerates them.
type Event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

func (Event) Op() OpCode { return OpEvent }

// Request asks the remote to perform requestType.
type Request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

func (Request) Op() OpCode { return OpRequest }

// RequestStatus reports the outcome of a Request.
type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// RequestResponse carries the result of the Request with the same RequestID.
type RequestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus RequestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

func (RequestResponse) Op() OpCode { return OpRequestResponse }

// EncodeFrame wraps f in the {op, d} envelope.
func EncodeFrame(f Frame) ([]byte, error) {
	d, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode op %d: %w", f.Op(), err)
	}
	return json.Marshal(envelope{Op: f.Op(), D: d})
}

// DecodeFrame parses one inbound message. Anything that is not a well-formed
// frame with a known inbound opcode yields a *ProtocolError.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: "invalid frame", Err: err}
	}
	if len(env.D) == 0 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("op %d without payload", env.Op)}
	}

	var (
		f   Frame
		err error
	)
	switch env.Op {
	case OpHello:
		var h Hello
		err = json.Unmarshal(env.D, &h)
		f = h
	case OpIdentified:
		var id Identified
		err = json.Unmarshal(env.D, &id)
		f = id
	case OpEvent:
		var ev Event
		err = json.Unmarshal(env.D, &ev)
		f = ev
	case OpRequestResponse:
		var resp RequestResponse
		err = json.Unmarshal(env.D, &resp)
		if err == nil && resp.RequestID == "" {
			return nil, &ProtocolError{Reason: "request response without requestId"}
		}
		f = resp
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected op %d", env.Op)}
	}
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid op %d payload", env.Op), Err: err}
	}
	return f, nil
}
