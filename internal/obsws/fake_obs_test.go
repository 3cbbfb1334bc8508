package obsws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeOBS is a minimal obs-websocket server for exercising the client.
type fakeOBS struct {
	t   *testing.T
	srv *httptest.Server

	password  string
	salt      string
	challenge string

	// skipIdentified leaves the handshake hanging after Hello.
	skipIdentified bool
	// afterIdentified runs once the client is identified, before requests are read.
	afterIdentified func(ctx context.Context, conn *websocket.Conn)
	// respond answers a request. A nil result sends nothing. When respond is
	// nil requests are delivered on requests for the test to answer.
	respond func(req Request) *RequestResponse

	requests   chan Request
	identifies chan Identify
	accepted   atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeOBS(t *testing.T, configure func(f *fakeOBS)) *fakeOBS {
	t.Helper()
	f := &fakeOBS{
		t:          t,
		requests:   make(chan Request, 64),
		identifies: make(chan Identify, 4),
	}
	if configure != nil {
		configure(f)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// host returns the host:port the client should dial.
func (f *fakeOBS) host() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeOBS) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	f.accepted.Add(1)

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	ctx := r.Context()
	hello := Hello{OBSWebSocketVersion: "5.5.0", RPCVersion: RPCVersion}
	if f.password != "" {
		hello.Authentication = &AuthChallenge{Salt: f.salt, Challenge: f.challenge}
	}
	if err := writeFrame(ctx, conn, hello); err != nil {
		return
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Op != OpIdentify {
		conn.Close(CloseNotIdentified, "expected identify")
		return
	}
	var identify Identify
	_ = json.Unmarshal(env.D, &identify)
	f.identifies <- identify

	if f.password != "" {
		want, _ := Authenticate(f.password, f.salt, f.challenge)
		if identify.Authentication != want {
			conn.Close(CloseAuthenticationFailed, "Authentication failed.")
			return
		}
	}
	if f.skipIdentified {
		_, _, _ = conn.Read(ctx)
		return
	}
	if err := writeFrame(ctx, conn, Identified{NegotiatedRPCVersion: RPCVersion}); err != nil {
		return
	}
	if f.afterIdentified != nil {
		f.afterIdentified(ctx, conn)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := json.Unmarshal(data, &env); err != nil || env.Op != OpRequest {
			continue
		}
		var req Request
		if err := json.Unmarshal(env.D, &req); err != nil {
			continue
		}
		if f.respond == nil {
			f.requests <- req
			continue
		}
		if resp := f.respond(req); resp != nil {
			if err := writeFrame(ctx, conn, *resp); err != nil {
				return
			}
		}
	}
}

// reply answers a request delivered on f.requests.
func (f *fakeOBS) reply(resp RequestResponse) {
	f.t.Helper()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := writeFrame(ctx, conn, resp); err != nil {
		f.t.Errorf("reply %s: %v", resp.RequestID, err)
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame Frame) error {
	b, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func ok(req Request, data string) *RequestResponse {
	resp := &RequestResponse{
		RequestType:   req.RequestType,
		RequestID:     req.RequestID,
		RequestStatus: RequestStatus{Result: true, Code: StatusSuccess},
	}
	if data != "" {
		resp.ResponseData = json.RawMessage(data)
	}
	return resp
}

func fail(req Request, code int, comment string) *RequestResponse {
	return &RequestResponse{
		RequestType:   req.RequestType,
		RequestID:     req.RequestID,
		RequestStatus: RequestStatus{Result: false, Code: code, Comment: comment},
	}
}
