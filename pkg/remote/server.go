// Package remote accepts action commands over a WebSocket and broadcasts
// executor events to every connected client.
//
// Requests and notifications follow JSON-RPC 2.0:
//
//	{"jsonrpc":"2.0","method":"dog.enqueue","params":{"action":"forward","steps":3,"speed":800},"id":1}
//	{"jsonrpc":"2.0","method":"dog.suspend","id":2}
//	{"jsonrpc":"2.0","method":"dog.status","id":3}
//	{"jsonrpc":"2.0","method":"notify_action","params":{"event":"started",...}}
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"

	"github.com/gwillem/cyberdog/pkg/action"
	"github.com/gwillem/cyberdog/pkg/motion"
)

// Controller is the dog as seen by remote clients.
type Controller interface {
	Enqueue(ctx context.Context, cmd action.Command) (action.Command, error)
	Suspend(ctx context.Context) error
	IsResting() bool
	Positions() motion.Pose
}

// Server is the remote control endpoint.
type Server struct {
	addr   string
	ctrl   Controller
	logger golog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server

	nextID    int64
	clientsMu sync.RWMutex
	clients   map[int64]*client
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, ctrl Controller, logger golog.Logger) *Server {
	if logger == nil {
		logger = golog.Global()
	}
	return &Server{
		addr:    addr,
		ctrl:    ctrl,
		logger:  logger,
		clients: make(map[int64]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infow("remote server listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop disconnects every client and closes the listener.
func (s *Server) Stop() error {
	s.clientsMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*client)
	s.clientsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Notify broadcasts an executor event. It never blocks, so it can be
// subscribed to the executor directly.
func (s *Server) Notify(ev action.Event) {
	msg := rpcMessage{
		JSONRPC: "2.0",
		Method:  "notify_action",
		Params:  newEventParams(ev),
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServer         = -32000
)

type enqueueParams struct {
	Action json.RawMessage `json:"action"`
	Steps  *int            `json:"steps,omitempty"`
	Speed  *int            `json:"speed,omitempty"`
}

// command builds the command described by p. The action may be a name or a
// wire number; missing steps and speed take their defaults.
func (p enqueueParams) command() (action.Command, error) {
	var kind action.Kind
	var n int
	var name string
	switch {
	case json.Unmarshal(p.Action, &n) == nil:
		kind = action.Kind(n)
	case json.Unmarshal(p.Action, &name) == nil:
		k, err := action.ParseKind(name)
		if err != nil {
			return action.Command{}, err
		}
		kind = k
	default:
		return action.Command{}, fmt.Errorf("missing action")
	}

	steps, speed := action.DefaultSteps, action.DefaultSpeed
	if p.Steps != nil {
		steps = *p.Steps
	}
	if p.Speed != nil {
		speed = *p.Speed
	}
	return action.NewCommand(kind, steps, speed), nil
}

type statusResult struct {
	Resting   bool           `json:"resting"`
	Positions map[string]int `json:"positions"`
}

func (s *Server) status() statusResult {
	pos := s.ctrl.Positions()
	res := statusResult{
		Resting:   s.ctrl.IsResting(),
		Positions: make(map[string]int, motion.Count),
	}
	for _, l := range motion.Limbs() {
		res.Positions[l.String()] = pos.At(l)
	}
	return res
}

type eventParams struct {
	Event  string    `json:"event"`
	ID     string    `json:"id,omitempty"`
	Action string    `json:"action,omitempty"`
	Steps  int       `json:"steps,omitempty"`
	Speed  int       `json:"speed,omitempty"`
	Time   time.Time `json:"time"`
	Error  string    `json:"error,omitempty"`
}

func newEventParams(ev action.Event) eventParams {
	p := eventParams{Event: ev.Type.String(), Time: ev.Time}
	if ev.Type != action.Suspended && ev.Type != action.Idle {
		p.ID = ev.Command.ID.String()
		p.Action = ev.Command.Kind.String()
		p.Steps = ev.Command.Steps
		p.Speed = ev.Command.Speed
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch strings.TrimPrefix(method, "dog.") {
	case "enqueue":
		var p enqueueParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		cmd, err := p.command()
		if err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		cmd, err = s.ctrl.Enqueue(ctx, cmd)
		if err != nil {
			return nil, &rpcError{Code: codeServer, Message: err.Error()}
		}
		return map[string]any{"id": cmd.ID.String(), "action": cmd.Kind.String(), "steps": cmd.Steps, "speed": cmd.Speed}, nil
	case "suspend":
		if err := s.ctrl.Suspend(ctx); err != nil {
			return nil, &rpcError{Code: codeServer, Message: err.Error()}
		}
		return "ok", nil
	case "status":
		return s.status(), nil
	}
	return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := s.newClient(conn)
	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()
	s.logger.Infow("remote client connected", "client", c.id, "addr", r.RemoteAddr)

	go c.writePump()
	c.readPump() // blocks until the connection closes
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	s.logger.Infow("remote client disconnected", "client", c.id)
}

type client struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan rpcMessage
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (s *Server) newClient(conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan rpcMessage, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *client) send(msg rpcMessage) {
	select {
	case c.sendCh <- msg:
	case <-c.ctx.Done():
	default:
		c.server.logger.Warnw("dropping message to slow client", "client", c.id)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warnw("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Warnw("websocket write failed", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) handleMessage(data []byte) {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(rpcMessage{JSONRPC: "2.0", Error: &rpcError{Code: codeParse, Message: "parse error"}})
		return
	}

	result, rerr := c.server.dispatch(c.ctx, req.Method, req.Params)
	if rerr != nil {
		c.send(rpcMessage{JSONRPC: "2.0", Error: rerr, ID: req.ID})
		return
	}
	c.send(rpcMessage{JSONRPC: "2.0", Result: result, ID: req.ID})
}
