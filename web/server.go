// Package web serves documents over a JSON-RPC WebSocket API so that
// editors can open files, stream edits and query the live syntax tree.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/odvcencio/sitter/document"
	"github.com/odvcencio/sitter/gotreesitter"
	"github.com/odvcencio/sitter/grammars"
)

// JSON-RPC error codes.
const (
	codeUnknownMethod = -32601
	codeBadParams     = -32602
	codeFailed        = -32000
)

// ErrOutsideRoot is returned when a path escapes the server's root directory.
var ErrOutsideRoot = errors.New("web: path outside root")

// Server provides the HTTP + WebSocket document server.
type Server struct {
	root     string
	docs     *Store
	upgrader websocket.Upgrader
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	clients []*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Documents log through a child logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithParseTimeout bounds every parse run on behalf of a client.
func WithParseTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a server that opens files below root.
func NewServer(root string, opts ...Option) *Server {
	s := &Server{
		root: root,
		docs: NewStore(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Documents returns the server's document store.
func (s *Server) Documents() *Store { return s.docs }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		s.handleWebSocket(w, r)
	case "/languages":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(languageList())
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn}
	log := s.log.With(zap.String("client", client.id))
	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	log.Info("client connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		conn.Close()
		s.mu.Lock()
		for i, c := range s.clients {
			if c == client {
				s.clients = append(s.clients[:i], s.clients[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		log.Info("client disconnected")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Debug("dropping malformed request", zap.Error(err))
			continue
		}
		resp := s.handleRPC(r.Context(), client, req)
		if resp.Error != nil {
			log.Debug("rpc failed", zap.String("method", req.Method), zap.String("error", resp.Error.Message))
		}
		if err := client.send(resp); err != nil {
			log.Warn("write response", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleRPC(ctx context.Context, client *wsClient, req rpcRequest) rpcResponse {
	switch req.Method {
	case "languages":
		return rpcResponse{ID: req.ID, Result: map[string]any{"languages": languageList()}}
	case "open":
		return s.rpcOpen(ctx, req)
	case "edit":
		return s.rpcEdit(ctx, client, req)
	case "undo", "redo":
		return s.rpcHistory(ctx, client, req)
	case "tree":
		return s.rpcTree(req)
	case "query":
		return s.rpcQuery(req)
	case "highlight":
		return s.rpcHighlight(req)
	case "diagnostics":
		return s.withDocument(req, func(d *document.Document) (any, error) {
			return map[string]any{"diagnostics": d.Diagnostics()}, nil
		})
	case "folds":
		return s.withDocument(req, func(d *document.Document) (any, error) {
			return map[string]any{"folds": d.Folds().Regions()}, nil
		})
	case "bracket":
		return s.rpcBracket(req)
	case "save":
		return s.rpcSave(req)
	case "close":
		return s.rpcClose(req)
	default:
		return rpcResponse{
			ID:    req.ID,
			Error: &rpcError{Code: codeUnknownMethod, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func badParams(req rpcRequest, err error) rpcResponse {
	return rpcResponse{ID: req.ID, Error: &rpcError{Code: codeBadParams, Message: err.Error()}}
}

func failed(req rpcRequest, err error) rpcResponse {
	return rpcResponse{ID: req.ID, Error: &rpcError{Code: codeFailed, Message: err.Error()}}
}

type docParams struct {
	ID string `json:"id"`
}

// withDocument decodes a {"id": ...} request and runs fn with the document
// locked.
func (s *Server) withDocument(req rpcRequest, fn func(*document.Document) (any, error)) rpcResponse {
	var p docParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, fn)
	if err != nil {
		return failed(req, err)
	}
	return rpcResponse{ID: req.ID, Result: result}
}

type docInfo struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Title    string `json:"title"`
	Path     string `json:"path,omitempty"`
	Text     string `json:"text"`
	HasError bool   `json:"hasError"`
}

func infoFor(d *document.Document) docInfo {
	return docInfo{
		ID:       d.ID(),
		Language: d.Language(),
		Title:    d.Title(),
		Path:     d.Path(),
		Text:     d.Text(),
		HasError: d.Tree().RootNode().HasError(),
	}
}

// resolve maps a client path onto the filesystem below root.
func (s *Server) resolve(path string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return full, nil
}

func (s *Server) docOptions() []document.Option {
	return []document.Option{
		document.WithLogger(s.log.Named("document")),
		document.WithTimeout(s.timeout),
	}
}

func (s *Server) rpcOpen(ctx context.Context, req rpcRequest) rpcResponse {
	var p struct {
		Path     string `json:"path"`
		Language string `json:"language"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}

	var (
		d   *document.Document
		err error
	)
	switch {
	case p.Path != "":
		path, rerr := s.resolve(p.Path)
		if rerr != nil {
			return failed(req, rerr)
		}
		d, err = document.Open(ctx, path, s.docOptions()...)
	case p.Language != "":
		entry := grammars.Lookup(p.Language)
		if entry == nil {
			return failed(req, fmt.Errorf("%w: %s", document.ErrUnknownLanguage, p.Language))
		}
		d, err = document.New(ctx, entry, p.Text, s.docOptions()...)
	default:
		return badParams(req, errors.New("open needs a path or a language"))
	}
	if err != nil {
		return failed(req, err)
	}
	s.docs.Add(d)
	return rpcResponse{ID: req.ID, Result: infoFor(d)}
}

type changeResult struct {
	ID       string                  `json:"id"`
	Applied  bool                    `json:"applied"`
	Edit     *gotreesitter.InputEdit `json:"edit,omitempty"`
	Ranges   []gotreesitter.Range    `json:"changedRanges"`
	HasError bool                    `json:"hasError"`
}

func changeFor(d *document.Document, change *document.Change) changeResult {
	res := changeResult{ID: d.ID(), HasError: d.Tree().RootNode().HasError()}
	if change != nil {
		res.Applied = true
		res.Edit = &change.Edit
		res.Ranges = change.Ranges
	}
	return res
}

func (s *Server) rpcEdit(ctx context.Context, client *wsClient, req rpcRequest) rpcResponse {
	var p struct {
		ID      string `json:"id"`
		Offset  int    `json:"offset"`
		OldText string `json:"oldText"`
		NewText string `json:"newText"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, func(d *document.Document) (any, error) {
		change, err := d.ApplyEdit(ctx, p.Offset, p.OldText, p.NewText)
		if err != nil {
			return nil, err
		}
		return changeFor(d, change), nil
	})
	if err != nil {
		return failed(req, err)
	}
	s.broadcast(client, "didChange", result)
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *Server) rpcHistory(ctx context.Context, client *wsClient, req rpcRequest) rpcResponse {
	var p docParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, func(d *document.Document) (any, error) {
		step := d.Undo
		if req.Method == "redo" {
			step = d.Redo
		}
		change, err := step(ctx)
		if err != nil {
			return nil, err
		}
		return changeFor(d, change), nil
	})
	if err != nil {
		return failed(req, err)
	}
	if result.(changeResult).Applied {
		s.broadcast(client, "didChange", result)
	}
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *Server) rpcTree(req rpcRequest) rpcResponse {
	return s.withDocument(req, func(d *document.Document) (any, error) {
		stats := d.Stats()
		return map[string]any{
			"sexp":     d.SExpression(),
			"hasError": d.Tree().RootNode().HasError(),
			"stats": map[string]any{
				"tokens":      stats.Tokens,
				"reusedNodes": stats.ReusedNodes,
				"reusedBytes": stats.ReusedBytes,
				"recoveries":  stats.Recoveries,
			},
		}, nil
	})
}

func (s *Server) rpcQuery(req rpcRequest) rpcResponse {
	var p struct {
		ID    string `json:"id"`
		Query string `json:"query"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, func(d *document.Document) (any, error) {
		caps, err := d.QueryRange(p.Query, document.Range{Start: p.Start, End: p.End})
		if err != nil {
			return nil, err
		}
		return map[string]any{"captures": caps}, nil
	})
	if err != nil {
		var qerr *gotreesitter.QueryError
		if errors.As(err, &qerr) {
			return badParams(req, err)
		}
		return failed(req, err)
	}
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *Server) rpcHighlight(req rpcRequest) rpcResponse {
	return s.withDocument(req, func(d *document.Document) (any, error) {
		ranges, err := d.Highlights()
		if err != nil {
			return nil, err
		}
		return map[string]any{"ranges": ranges}, nil
	})
}

func (s *Server) rpcBracket(req rpcRequest) rpcResponse {
	var p struct {
		ID     string `json:"id"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, func(d *document.Document) (any, error) {
		match, ok := d.MatchingBracket(p.Offset)
		return map[string]any{"offset": match, "found": ok}, nil
	})
	if err != nil {
		return failed(req, err)
	}
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *Server) rpcSave(req rpcRequest) rpcResponse {
	var p struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	result, err := s.docs.With(p.ID, func(d *document.Document) (any, error) {
		if p.Path == "" {
			if err := d.Save(); err != nil {
				return nil, err
			}
		} else {
			path, err := s.resolve(p.Path)
			if err != nil {
				return nil, err
			}
			if err := d.SaveAs(path); err != nil {
				return nil, err
			}
		}
		return map[string]string{"status": "saved", "path": d.Path()}, nil
	})
	if err != nil {
		return failed(req, err)
	}
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *Server) rpcClose(req rpcRequest) rpcResponse {
	var p docParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return badParams(req, err)
	}
	if !s.docs.Close(p.ID) {
		return failed(req, fmt.Errorf("%w: %s", ErrUnknownDocument, p.ID))
	}
	return rpcResponse{ID: req.ID, Result: map[string]string{"status": "closed"}}
}

type languageInfo struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
}

func languageList() []languageInfo {
	var out []languageInfo
	for _, e := range grammars.AllLanguages() {
		out = append(out, languageInfo{Name: e.Name, Extensions: e.Extensions})
	}
	return out
}

// Broadcast sends a notification to all connected WebSocket clients.
func (s *Server) Broadcast(method string, params any) {
	s.broadcast(nil, method, params)
}

// broadcast notifies every client except skip.
func (s *Server) broadcast(skip *wsClient, method string, params any) {
	s.mu.Lock()
	clients := append([]*wsClient(nil), s.clients...)
	s.mu.Unlock()

	msg := notification{Method: method, Params: params}
	for _, c := range clients {
		if c == skip {
			continue
		}
		if err := c.send(msg); err != nil {
			s.log.Debug("broadcast", zap.String("client", c.id), zap.Error(err))
		}
	}
}
