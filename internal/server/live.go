package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

const (
	defaultBacklog   = 500
	subscribeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// liveMessage is one document as sent to live subscribers.
type liveMessage struct {
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields"`
}

func toLiveMessage(d model.Document) liveMessage {
	fields := make(map[string]any, len(d.Attributes)+6)
	for k, v := range d.Attributes {
		fields[k] = v
	}
	fields[model.FieldID] = d.ID
	fields[model.FieldLevel] = d.Level
	fields[model.FieldService] = d.Service
	if d.Tenant != "" {
		fields[model.FieldTenant] = d.Tenant
	}
	if d.TraceID != "" {
		fields[model.FieldTraceID] = d.TraceID
	}
	if d.SpanID != "" {
		fields[model.FieldSpanID] = d.SpanID
	}
	return liveMessage{Timestamp: d.Timestamp, Message: d.Message, Fields: fields}
}

type liveClient struct {
	conn   *websocket.Conn
	query  model.ParsedQuery
	tenant string

	mu sync.Mutex // serializes writes
}

func (c *liveClient) match(docs []model.Document) []model.Document {
	matched := engine.ApplyQuery(docs, model.TimeRange{}, "", c.query)
	if c.tenant == "" {
		return matched
	}
	out := matched[:0:0]
	for _, d := range matched {
		if d.Tenant == c.tenant {
			out = append(out, d)
		}
	}
	return out
}

func (c *liveClient) writeLocked(mt int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(mt, data)
}

func (c *liveClient) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(mt, data)
}

func (c *liveClient) sendDocuments(docs []model.Document, locked bool) error {
	msgs := make([]liveMessage, len(docs))
	for i, d := range docs {
		msgs[i] = toLiveMessage(d)
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	if locked {
		return c.writeLocked(websocket.TextMessage, data)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *liveClient) close(code int, text string) {
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
	c.conn.Close()
}

// Hub owns ingestion into the engine and the set of live subscribers.
// Storing a batch and snapshotting it for a new subscriber happen under
// the same lock, so every subscriber sees each document exactly once:
// either in its backlog or in a later broadcast.
type Hub struct {
	engine   *engine.Engine
	metrics  Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader
	parser   fastjson.ParserPool

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

// NewHub creates a Hub over e.
func NewHub(e *engine.Engine, metrics Metrics, log *slog.Logger) *Hub {
	return &Hub{
		engine:  e,
		metrics: metrics,
		log:     log.With("component", "live"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*liveClient]struct{}),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Ingest stores docs and sends each subscriber the ones matching its query.
func (h *Hub) Ingest(docs ...model.Document) []model.Document {
	h.mu.Lock()
	stored := h.engine.Ingest(docs...)
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if len(stored) == 0 {
		return stored
	}
	for _, c := range clients {
		matched := c.match(stored)
		if len(matched) == 0 {
			continue
		}
		if err := c.sendDocuments(matched, false); err != nil {
			h.log.Debug("drop live client", "error", err)
			c.conn.Close()
			h.remove(c)
		}
	}
	return stored
}

func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.metrics.LiveClientRemoved()
	}
}

// Close sends every subscriber a going-away close frame and disconnects
// it. Later subscriptions are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
		h.remove(c)
	}
}

// ServeWS upgrades the request and streams matching documents. The client
// sends {"action":"subscribe","query":...,"limit":N} first; the query,
// limit and tenant URL parameters fill in whatever the frame leaves out.
// The newest limit matches are sent as a backlog, then live batches.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	params := r.URL.Query()
	query := params.Get("query")
	limit, _ := strconv.Atoi(params.Get("limit"))

	conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		h.log.Debug("no subscribe frame", "error", err)
		return
	}
	p := h.parser.Get()
	v, err := p.ParseBytes(data)
	if err != nil || string(v.GetStringBytes("action")) != "subscribe" {
		h.parser.Put(p)
		c := &liveClient{conn: conn}
		c.close(websocket.CloseUnsupportedData, "expected subscribe")
		return
	}
	if q := v.Get("query"); q != nil && q.Type() == fastjson.TypeString {
		query = string(q.GetStringBytes())
	}
	if n := v.GetInt("limit"); n > 0 {
		limit = n
	}
	h.parser.Put(p)
	if limit <= 0 {
		limit = defaultBacklog
	}

	c := &liveClient{conn: conn, query: lucene.Parse(query), tenant: params.Get("tenant")}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	snapshot := h.engine.Table().Snapshot()
	h.clients[c] = struct{}{}
	// hold the write lock until the backlog is out so broadcasts queue behind it
	c.mu.Lock()
	h.mu.Unlock()
	h.metrics.LiveClientAdded()
	defer h.remove(c)

	backlog := c.match(snapshot)
	if len(backlog) > limit {
		backlog = backlog[len(backlog)-limit:]
	}
	if len(backlog) > 0 {
		err = c.sendDocuments(backlog, true)
	}
	c.mu.Unlock()
	if err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug("websocket read", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}
