package p2p

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// wsTransport adapts a websocket connection to the Transport interface by
// presenting it as an ordered byte stream: each WriteMessage/ReadMessage
// call carries exactly one JSON-encoded Envelope frame, so Session's
// bufio/json.Decoder pairing still works unmodified even though the
// underlying transport is message-, not byte-, oriented.
type wsTransport struct {
	conn       *websocket.Conn
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc

	readBuf []byte
}

// DialWS opens a client-side websocket session to url.
func DialWS(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("p2p: websocket dial: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &wsTransport{conn: conn, remoteAddr: url, ctx: runCtx, cancel: cancel}, nil
}

// AcceptWS upgrades an inbound HTTP request to a server-side websocket
// session, the reference Transport implementation for the spec's "any
// framed transport" extensibility point.
func AcceptWS(w http.ResponseWriter, r *http.Request) (Transport, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("p2p: websocket accept: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &wsTransport{conn: conn, remoteAddr: r.RemoteAddr, ctx: runCtx, cancel: cancel}, nil
}

func (t *wsTransport) RemoteAddr() string { return t.remoteAddr }

// Read returns bytes from the most recently received message, refilling
// from a fresh websocket message once the buffer is drained. json.Decoder
// calls Read repeatedly expecting a byte stream, which this satisfies by
// treating consecutive websocket text messages as a concatenated stream.
func (t *wsTransport) Read(p []byte) (int, error) {
	for len(t.readBuf) == 0 {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			return 0, fmt.Errorf("p2p: websocket read: %w", err)
		}
		t.readBuf = data
	}
	n := copy(p, t.readBuf)
	t.readBuf = t.readBuf[n:]
	return n, nil
}

// Write sends p as a single websocket text message (one Envelope per call,
// matching how json.Encoder.Encode issues one Write per marshaled value).
func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.Write(t.ctx, websocket.MessageText, p); err != nil {
		return 0, fmt.Errorf("p2p: websocket write: %w", err)
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	t.cancel()
	return t.conn.Close(websocket.StatusNormalClosure, "session closed")
}
