package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"Forumus/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 20 * time.Second
	pingInterval = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler pushes live sync emissions over WebSocket: the chat
// list for a user and the message tail for a thread.
type StreamHandler struct {
	lists    *service.ChatListSync
	tails    *service.MessageTailSync
	tailSize int64
	logger   *zap.Logger
}

func NewStreamHandler(lists *service.ChatListSync, tails *service.MessageTailSync, tailSize int64, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{lists: lists, tails: tails, tailSize: tailSize, logger: logger}
}

// ServeChatList streams the live chat list. Query params: userId
// (required), filter=all|unread.
func (h *StreamHandler) ServeChatList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	filter := service.FilterAll
	if r.URL.Query().Get("filter") == "unread" {
		filter = service.FilterUnread
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := h.lists.Observe(ctx, userID, filter)
	if err != nil {
		cancel()
		if errors.Is(err, service.ErrUnauthenticated) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		stream.Cancel()
		cancel()
		return
	}

	go h.run(conn, cancel, stream.Cancel, func(c *websocket.Conn) error {
		for {
			select {
			case list := <-stream.Updates():
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteJSON(list); err != nil {
					return err
				}
			case <-stream.Done():
				return stream.Err()
			case <-time.After(pingInterval):
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return err
				}
			}
		}
	})
}

// ServeThreadTail streams the live message tail of one thread. Query
// params: userId (required), threadId (required), tail.
func (h *StreamHandler) ServeThreadTail(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("userId") == "" {
		http.Error(w, service.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}
	threadID := r.URL.Query().Get("threadId")
	if threadID == "" {
		http.Error(w, "threadId is required", http.StatusBadRequest)
		return
	}

	tail := h.tailSize
	if raw := r.URL.Query().Get("tail"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			tail = n
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := h.tails.Observe(ctx, threadID, tail)
	if err != nil {
		cancel()
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		stream.Cancel()
		cancel()
		return
	}

	go h.run(conn, cancel, stream.Cancel, func(c *websocket.Conn) error {
		for {
			select {
			case msgs := <-stream.Updates():
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteJSON(msgs); err != nil {
					return err
				}
			case <-stream.Done():
				return stream.Err()
			case <-time.After(pingInterval):
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return err
				}
			}
		}
	})
}

// run owns one connection: a read pump to notice the peer going away
// and a write pump streaming emissions. Either pump ending tears the
// whole subscription down.
func (h *StreamHandler) run(conn *websocket.Conn, cancel context.CancelFunc, stop func(), write func(*websocket.Conn) error) {
	defer func() {
		stop()
		cancel()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- write(conn)
	}()

	select {
	case <-readClosed:
	case err := <-writeErr:
		if err != nil {
			h.logger.Debug("stream ended with error", zap.Error(err))
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, msg)
		}
	}
}
