package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/poller"
)

// stream pushes the current view on connect and every applied view after that.
// Client messages are ignored.
func (s *httpServer) stream(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.allowedOrigin == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{s.allowedOrigin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Debug("stream accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	views, unsubscribe := s.source.Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	if s.streams != nil {
		s.streams.StreamClient(ctx, 1)
		defer s.streams.StreamClient(context.WithoutCancel(ctx), -1)
	}

	if err := s.send(ctx, conn, s.source.View()); err != nil {
		s.logStreamEnd(err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server stopping")
				return
			}
			if err := s.send(ctx, conn, view); err != nil {
				s.logStreamEnd(err)
				return
			}
		}
	}
}

func (s *httpServer) send(ctx context.Context, conn *websocket.Conn, view poller.View) error {
	payload, err := json.MarshalNoEscape(view)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write view: %w", err)
	}
	return nil
}

func (s *httpServer) logStreamEnd(err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		return
	}
	s.logger.Debug("stream closed", zap.Error(err))
}
