package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"MarketBoard/internal/domain/models"
	drepo "MarketBoard/internal/domain/repository"
	"MarketBoard/internal/service/ratelimit"
	xhttp "MarketBoard/pkg/http"
	applogger "MarketBoard/pkg/logger"
)

const (
	DefaultWebsocketURL = "wss://ws.finnhub.io"
	DefaultRestURL      = "https://finnhub.io/api/v1"
)

// Client is a Finnhub provider: trades over WebSocket when running in push
// mode, the REST quote endpoint for FetchOnce.
type Client struct {
	id             string
	apiKey         string
	websocketURL   string
	restURL        string
	mode           models.FetchMode
	reconnectDelay time.Duration
	pingInterval   time.Duration

	http       *xhttp.Client
	limiter    *ratelimit.Limiter
	rateBurst  float64
	ratePerSec float64
	logger     *applogger.Logger

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	symbols  []string
	onUpdate func(models.RawQuote)
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*Client)

func WithID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.id = id
		}
	}
}

func WithWebsocketURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.websocketURL = u
		}
	}
}

func WithRestURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.restURL = u
		}
	}
}

// WithMode selects push (WebSocket trades) or poll (REST quotes).
func WithMode(m models.FetchMode) Option {
	return func(c *Client) {
		if m == models.FetchPush || m == models.FetchPoll {
			c.mode = m
		}
	}
}

func WithReconnect(delay, ping time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.reconnectDelay = delay
		}
		if ping > 0 {
			c.pingInterval = ping
		}
	}
}

// WithRateLimit shares a limiter for REST calls. burst <= 0 disables it.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(c *Client) {
		c.limiter = l
		c.rateBurst = burst
		c.ratePerSec = perSec
	}
}

func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Finnhub provider.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		id:             "finnhub",
		apiKey:         apiKey,
		websocketURL:   DefaultWebsocketURL,
		restURL:        DefaultRestURL,
		mode:           models.FetchPush,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		http:           xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		logger:         applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("finnhub")
	return c
}

func (c *Client) ID() string { return c.id }
func (c *Client) Mode() models.FetchMode { return c.mode }

// Track sets the upstream symbols subscribed on every (re)connect.
func (c *Client) Track(symbols ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = append(c.symbols, symbols...)
}

func (c *Client) OnUpdate(fn func(models.RawQuote)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Connect dials the stream and subscribes. The read loop then runs until
// Disconnect, reconnecting on its own. Poll mode has nothing to connect.
func (c *Client) Connect(ctx context.Context) error {
	if c.mode != models.FetchPush {
		return nil
	}
	c.mu.Lock()
	running := c.cancel != nil
	c.mu.Unlock()
	if running {
		return nil
	}
	if err := c.dial(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pingLoop(runCtx)
	go c.run(runCtx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()

	for _, s := range symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.write(conn, func(w *websocket.Conn) error { return w.WriteJSON(msg) }); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.logger.Info("finnhub connected", applogger.Int("symbols", len(symbols)))
	return nil
}

func (c *Client) write(conn *websocket.Conn, fn func(*websocket.Conn) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(conn)
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn := c.current(); conn != nil {
				_ = c.write(conn, func(w *websocket.Conn) error { return w.WriteMessage(websocket.PingMessage, nil) })
			}
		}
	}
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		err := c.read(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("finnhub stream dropped", applogger.Error(err))
		c.closeConn()
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
			}
			if err := c.dial(ctx); err != nil {
				c.logger.Warn("finnhub reconnect failed", applogger.Error(err))
				continue
			}
			break
		}
	}
}

func (c *Client) read(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return errors.New("finnhub conn nil")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		quotes, err := decodeFrame(b, c.id)
		if err != nil {
			c.logger.Debug("finnhub frame skipped", applogger.Error(err))
			continue
		}
		c.mu.Lock()
		fn := c.onUpdate
		c.mu.Unlock()
		if fn == nil {
			continue
		}
		for _, q := range quotes {
			fn(q)
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Disconnect stops the read loop and closes the socket.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.closeConn()
	c.wg.Wait()
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Msg  string    `json:"msg"`
	Data []fhTrade `json:"data"`
}

// decodeFrame turns a trade frame into quotes. Other frame types yield none.
func decodeFrame(b []byte, source string) ([]models.RawQuote, error) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	switch m.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("finnhub: %s", m.Msg)
	default:
		return nil, nil
	}
	out := make([]models.RawQuote, 0, len(m.Data))
	for _, d := range m.Data {
		q := models.RawQuote{
			Kind:      models.QuoteKindPrice,
			Source:    source,
			Symbol:    d.S,
			Price:     d.P,
			Timestamp: time.UnixMilli(d.T),
		}
		if q.Validate() != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

type restQuote struct {
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	DP float64 `json:"dp"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	T  int64   `json:"t"`
}

// FetchOnce reads the REST quote for inst.
func (c *Client) FetchOnce(ctx context.Context, inst models.Instrument) (models.RawQuote, error) {
	if c.limiter != nil && !c.limiter.Allow(c.id, c.rateBurst, c.ratePerSec) {
		return models.RawQuote{}, models.ErrRateLimited
	}
	symbol := inst.UpstreamSymbol()
	var r restQuote
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.restURL + "/quote",
		Headers:     map[string]string{"X-Finnhub-Token": c.apiKey},
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &r)
	if err != nil {
		if xhttp.IsStatus(err, http.StatusTooManyRequests) {
			return models.RawQuote{}, models.ErrRateLimited
		}
		return models.RawQuote{}, fmt.Errorf("%w: finnhub quote %s: %v", models.ErrTransientProvider, symbol, err)
	}
	if r.C == 0 && r.T == 0 {
		return models.RawQuote{}, fmt.Errorf("finnhub quote %s: no data", symbol)
	}
	ts := time.Unix(r.T, 0)
	if r.T == 0 {
		ts = time.Now()
	}
	q := models.RawQuote{
		Kind:      models.QuoteKindPrice,
		Source:    c.id,
		Symbol:    symbol,
		Price:     r.C,
		Currency:  inst.QuoteCurrency,
		Timestamp: ts,
		Extras: models.QuoteExtras{
			Change24h:        &r.D,
			ChangePercent24h: &r.DP,
			High24h:          &r.H,
			Low24h:           &r.L,
		},
	}
	if err := q.Validate(); err != nil {
		return models.RawQuote{}, err
	}
	return q, nil
}

var (
	_ drepo.ProviderAdapter = (*Client)(nil)
	_ drepo.Subscribable    = (*Client)(nil)
)
