package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/subscription"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Client commands on the stream.
const (
	ActionOpenPortfolio = "open_portfolio"
	ActionOpenWatchlist = "open_watchlist"
	ActionWatch         = "watch"
	ActionClose         = "close"
)

// Command is a client request read from the stream.
type Command struct {
	Action  string   `json:"action"`
	ID      string   `json:"id,omitempty"`
	View    string   `json:"view,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// Reply acknowledges a Command. Code is an HTTP status.
type Reply struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Code   int    `json:"code"`
	Error  string `json:"error,omitempty"`
}

type wsTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	once         sync.Once
}

func (t *wsTransport) Send(_ context.Context, env subscription.Envelope) error {
	return t.write(env)
}

func (t *wsTransport) write(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.mu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Warnf("server: upgrade stream, err: %+v", err)
		return
	}
	tr := &wsTransport{conn: conn, writeTimeout: s.cfg.WriteTimeout}

	ctx := c.Request.Context()
	session, err := s.subs.Open(ctx, ownerOf(c), tr)
	if err != nil {
		_ = tr.write(Reply{Type: "error", Code: statusOf(err), Error: err.Error()})
		_ = tr.Close()
		return
	}
	defer func() { _ = s.subs.Disconnect(session.ID()) }()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Infof("server: session %s read, err: %+v", session.ID(), err)
			}
			return
		}
		reply := Reply{Type: "ack", Action: cmd.Action, ID: cmd.ID, Code: 200}
		if err := s.execute(ctx, session.ID(), cmd); err != nil {
			reply.Type, reply.Code, reply.Error = "error", statusOf(err), err.Error()
		}
		if err := tr.write(reply); err != nil {
			return
		}
	}
}

func (s *Server) execute(ctx context.Context, sessionID string, cmd Command) error {
	switch cmd.Action {
	case ActionOpenPortfolio:
		return s.subs.OpenPortfolio(ctx, sessionID, cmd.ID)
	case ActionOpenWatchlist:
		return s.subs.OpenWatchlist(ctx, sessionID, cmd.ID)
	case ActionWatch:
		return s.subs.WatchSymbols(ctx, sessionID, cmd.Symbols...)
	case ActionClose:
		switch cmd.View {
		case "portfolio":
			return s.subs.CloseView(sessionID, subscription.ViewPortfolio, cmd.ID)
		case "watchlist":
			return s.subs.CloseView(sessionID, subscription.ViewWatchlist, cmd.ID)
		case "symbols", "symbol":
			for _, symbol := range cmd.Symbols {
				if err := s.subs.CloseView(sessionID, subscription.ViewSymbols, symbol); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("%w: view %q", exception.ErrUnknownView, cmd.View)
	default:
		return fmt.Errorf("%w: action %q", exception.ErrInvalidArgument, cmd.Action)
	}
}
