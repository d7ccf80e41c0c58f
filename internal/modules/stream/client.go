// Package stream maintains the persistent push connections to the exchange:
// a private feed for order/account events and one public feed for tickers.
// Raw frames are parsed into normalized events at this boundary; unknown
// shapes are logged and dropped, never propagated inward.
package stream

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"

	"github.com/gorilla/websocket"
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

const (
	pingInterval    = 20 * time.Second
	pongGrace       = 15 * time.Second
	subscribeBatch  = 20
	interBatchDelay = 250 * time.Millisecond
	maxBackoffSteps = 10
	baseBackoff     = time.Second
)

type OrderUpdateHandler func(models.OrderUpdate)
type AccountUpdateHandler func(models.AccountUpdate)
type PriceTickHandler func(models.PriceTick)

// Client owns the stream connections. Handlers are fire-and-forget: each event
// is delivered per handler in its own goroutine, errors/panics isolated so a
// slow or broken subscriber can never stall the connection loop.
type Client struct {
	cfg      *config.Config
	wsDialer *websocket.Dialer

	endpoints *endpointSet

	mu      sync.RWMutex
	symbols []string // public ticker subscriptions, restored on reconnect
	onOrder []OrderUpdateHandler
	onAcct  []AccountUpdateHandler
	onTick  []PriceTickHandler
}

func NewClient(cfg *config.Config) *Client {
	domains := cfg.Exchange.WSDomains
	if len(domains) == 0 {
		domains = []string{"wss://ws.okx.com:8443"}
	}
	return &Client{
		cfg:       cfg,
		wsDialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		endpoints: newEndpointSet(domains, 3, 5*time.Minute),
	}
}

func (c *Client) OnOrderUpdate(h OrderUpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOrder = append(c.onOrder, h)
}

func (c *Client) OnAccountUpdate(h AccountUpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAcct = append(c.onAcct, h)
}

func (c *Client) OnPriceTick(h PriceTickHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = append(c.onTick, h)
}

// WatchSymbols sets the public ticker subscription set. Takes effect on the
// next (re)connect of the public feed.
func (c *Client) WatchSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = append([]string(nil), symbols...)
}

func (c *Client) watched() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.symbols...)
}

// Start launches both feed loops. They stop when ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	go c.runFeed(ctx, feedPrivate)
	go c.runFeed(ctx, feedPublic)
}

func (c *Client) dispatchOrder(u models.OrderUpdate) {
	metrics.StreamEvents.WithLabelValues("order_update").Inc()
	c.mu.RLock()
	handlers := append([]OrderUpdateHandler(nil), c.onOrder...)
	c.mu.RUnlock()
	for _, h := range handlers {
		go func(h OrderUpdateHandler) {
			defer recoverHandler("order_update")
			h(u)
		}(h)
	}
}

func (c *Client) dispatchAccount(u models.AccountUpdate) {
	metrics.StreamEvents.WithLabelValues("account_update").Inc()
	c.mu.RLock()
	handlers := append([]AccountUpdateHandler(nil), c.onAcct...)
	c.mu.RUnlock()
	for _, h := range handlers {
		go func(h AccountUpdateHandler) {
			defer recoverHandler("account_update")
			h(u)
		}(h)
	}
}

func (c *Client) dispatchTick(t models.PriceTick) {
	metrics.StreamEvents.WithLabelValues("price_tick").Inc()
	c.mu.RLock()
	handlers := append([]PriceTickHandler(nil), c.onTick...)
	c.mu.RUnlock()
	for _, h := range handlers {
		go func(h PriceTickHandler) {
			defer recoverHandler("price_tick")
			h(t)
		}(h)
	}
}

func recoverHandler(kind string) {
	if p := recover(); p != nil {
		logger.Error("[STREAM] %s handler panic: %v", kind, p)
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt > maxBackoffSteps {
		attempt = maxBackoffSteps
	}
	return baseBackoff << uint(attempt)
}
