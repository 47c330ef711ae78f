// Package grpc provides a lightweight JSON-over-TCP RPC framework for
// internal calls into the query service.
//
// It avoids the full google.golang.org/grpc dependency while keeping the
// core RPC patterns: method registration, dispatch, request/response
// framing and per-call deadlines.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// request carries an id, echoed in the response, and an optional timeout
// in milliseconds that bounds the handler's context.
//
// Example server:
//
//	s := grpc.NewServer()
//	s.Register("Index.Query", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var q proto.QueryRequest
//	    json.Unmarshal(req, &q)
//	    // ... execute ...
//	    return &proto.QueryResponse{...}, nil
//	})
//	s.Serve(":9091")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:9091")
//	var resp proto.QueryResponse
//	c.Call(ctx, "Index.Query", &proto.QueryRequest{...}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request. RequestID is the
// caller's request id; the per-connection ID is used when it is empty.
type Request struct {
	Method    string          `json:"method"`
	ID        string          `json:"id"`
	RequestID string          `json:"request_id,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
	Params    json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup

	lnMu     sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve listens on addr and serves until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener serves connections accepted from ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.lnMu.Lock()
	if s.ctx.Err() != nil {
		s.lnMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.lnMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.lnMu.Lock()
		if s.ctx.Err() != nil {
			s.lnMu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.lnMu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.lnMu.Lock()
		delete(s.conns, conn)
		s.lnMu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	rid := req.RequestID
	if rid == "" {
		rid = req.ID
	}
	ctx := logger.WithRequestID(s.ctx, rid)
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	data, err := handler(ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("encoding result: %v", err)
		return resp
	}
	resp.Data = raw
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and every open connection, cancels in-flight
// handlers and waits for them to return.
func (s *Server) Stop() {
	s.lnMu.Lock()
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.lnMu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
