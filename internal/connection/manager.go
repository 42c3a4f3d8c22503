// Package connection owns the websocket that carries one matching run.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/logger"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 4 << 20
	previewLimit            = 120
)

// Request is the first and only message sent on a connection.
type Request struct {
	Token      string `json:"token"`
	ResumeText string `json:"resume_text"`
}

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	UserAgent        string
}

// Callbacks receive everything a connection produces. Both run on the reader goroutine.
type Callbacks struct {
	OnMessage func([]byte)
	OnFailure func(Failure)
}

type Manager struct {
	cfg    Config
	logger *zap.Logger
	dialer *websocket.Dialer
}

func New(log *zap.Logger, cfg Config) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}

	return &Manager{
		cfg:    cfg,
		logger: log,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Start dials the stream, sends req and starts delivering inbound messages.
// Any error returned is a *Failure of kind ConnectFailed.
func (m *Manager) Start(ctx context.Context, req Request, cb Callbacks) (*Handle, error) {
	header := http.Header{}
	if m.cfg.UserAgent != "" {
		header.Set("User-Agent", m.cfg.UserAgent)
	}

	m.logger.Debug("dialing match stream", zap.String("url", m.cfg.URL))

	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		msg := err.Error()
		if resp != nil {
			msg = "handshake failed: " + resp.Status
		}
		return nil, &Failure{Kind: ConnectFailed, Message: msg, Err: err}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, &Failure{Kind: ConnectFailed, Message: "encode request", Err: err}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, &Failure{Kind: ConnectFailed, Message: "send request", Err: err}
	}
	conn.SetReadLimit(m.cfg.ReadLimit)

	h := &Handle{
		conn:         conn,
		logger:       m.logger,
		writeTimeout: m.cfg.WriteTimeout,
		done:         make(chan struct{}),
	}

	go h.read(cb)
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()

	return h, nil
}

// Handle is one live connection.
type Handle struct {
	conn         *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	stale atomic.Bool
	once  sync.Once
	done  chan struct{}
}

// Cancel marks the handle stale and closes the connection. After Cancel no
// callback starts; one already running finishes. Safe to call more than once
// and from inside a callback.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.stale.Store(true)

		deadline := time.Now().Add(h.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = h.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = h.conn.Close()
	})
}

// Stale reports whether Cancel was called.
func (h *Handle) Stale() bool {
	return h.stale.Load()
}

// Done is closed when the reader goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) read(cb Callbacks) {
	defer close(h.done)
	defer h.conn.Close()

	for {
		msgType, data, err := h.conn.ReadMessage()
		if err != nil {
			if h.Stale() {
				h.logger.Debug("stream reader stopped after cancel")
				return
			}
			failure := classify(err)
			h.logger.Debug("stream ended", zap.Stringer("kind", failure.Kind), zap.Error(err))
			if cb.OnFailure != nil {
				cb.OnFailure(failure)
			}
			return
		}

		if h.Stale() {
			h.logger.Debug("dropping message read after cancel",
				zap.String("payload", logger.TruncateForLog(string(data), previewLimit)))
			return
		}

		if msgType != websocket.TextMessage {
			h.logger.Debug("skipping non-text frame", zap.Int("type", msgType))
			continue
		}

		if cb.OnMessage != nil {
			cb.OnMessage(data)
		}
	}
}

func classify(err error) Failure {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code != websocket.CloseNormalClosure && closeErr.Text != "" {
			return Failure{Kind: PeerError, Message: closeErr.Text, Err: err}
		}
		return Failure{Kind: StreamInterrupted, Message: "connection closed before the run finished", Err: err}
	}
	return Failure{Kind: StreamInterrupted, Message: err.Error(), Err: err}
}
