package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// WebSocketConfig configures a WebSocketSource.
type WebSocketConfig struct {
	URL    string
	Header http.Header
	// Subscribe is written as JSON right after the handshake when set.
	Subscribe   any
	ReadTimeout time.Duration
}

// WebSocketSource reads JSON ticks, one per text frame.
type WebSocketSource struct {
	name   string
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	now    func() time.Time
}

// NewWebSocketSource creates a websocket source.
func NewWebSocketSource(name string, cfg WebSocketConfig) (*WebSocketSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("invalid websocket source %s: url is empty", name)
	}
	return &WebSocketSource{
		name:   name,
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		now:    time.Now,
	}, nil
}

func (s *WebSocketSource) Name() string { return "ws:" + s.name }

func (s *WebSocketSource) Dial(ctx context.Context) (Stream, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", s.cfg.URL)
	}
	if s.cfg.Subscribe != nil {
		if err := conn.WriteJSON(s.cfg.Subscribe); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "write subscribe payload")
		}
	}
	return &wsStream{conn: conn, readTimeout: s.cfg.ReadTimeout, now: s.now, name: s.Name()}, nil
}

type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	now         func() time.Time
	name        string
}

func (st *wsStream) Recv(ctx context.Context) (codec.Tick, error) {
	stop := context.AfterFunc(ctx, func() { _ = st.conn.Close() })
	defer stop()

	if st.readTimeout > 0 {
		if err := st.conn.SetReadDeadline(st.now().Add(st.readTimeout)); err != nil {
			return codec.Tick{}, &exception.TransientFeedError{Err: err}
		}
	}
	_, data, err := st.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return codec.Tick{}, ctx.Err()
		}
		return codec.Tick{}, &exception.TransientFeedError{Err: err}
	}
	tick, err := codec.DecodeTick(data)
	if err != nil {
		return codec.Tick{}, exception.Malformed(st.name, "decode tick", err)
	}
	tick.TsRecv = st.now().UTC().UnixNano()
	return tick, nil
}

func (st *wsStream) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = st.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return st.conn.Close()
}
