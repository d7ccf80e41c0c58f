package stream

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"

	"github.com/gorilla/websocket"
)

type feedKind string

const (
	feedPrivate feedKind = "private"
	feedPublic  feedKind = "public"
)

func (k feedKind) path() string {
	if k == feedPrivate {
		return "/ws/v5/private"
	}
	return "/ws/v5/public"
}

// runFeed is the per-feed connection state machine:
// disconnected -> connecting -> connected -> (error) -> disconnected, with
// exponential backoff between attempts and endpoint failover on repeated
// failures of one domain.
func (c *Client) runFeed(ctx context.Context, kind feedKind) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		domain := c.endpoints.pick()
		if domain == "" {
			logger.Error("[STREAM] %s: no ws domains configured", kind)
			return
		}

		if attempt > 0 {
			delay := backoffDelay(attempt)
			logger.Info("[STREAM] %s: reconnect in %s (attempt %d, domain %s)", kind, delay, attempt, domain)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		attempt++
		metrics.StreamReconnects.WithLabelValues(string(kind)).Inc()

		conn, _, err := c.wsDialer.DialContext(ctx, domain+kind.path(), nil)
		if err != nil {
			logger.Error("[STREAM] %s: dial %s: %v", kind, domain, err)
			c.endpoints.fail(domain)
			continue
		}

		if err := c.setupFeed(ctx, conn, kind); err != nil {
			logger.Error("[STREAM] %s: setup: %v", kind, err)
			_ = conn.Close()
			c.endpoints.fail(domain)
			continue
		}

		c.endpoints.success(domain)
		attempt = 0
		logger.Info("[STREAM] %s: connected to %s", kind, domain)

		// readLoop returns on any error or liveness timeout
		c.readLoop(ctx, conn, kind)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			c.endpoints.fail(domain)
			attempt = 1
		}
	}
}

// setupFeed logs in (private feed) and restores the full subscription set in
// bounded batches with small delays so a large watchlist never trips venue
// abuse limits.
func (c *Client) setupFeed(ctx context.Context, conn *websocket.Conn, kind feedKind) error {
	if kind == feedPrivate {
		if err := c.login(conn); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		sub := map[string]any{
			"op": "subscribe",
			"args": []map[string]string{
				{"channel": "orders", "instType": "SWAP"},
				{"channel": "positions", "instType": "SWAP"},
			},
		}
		return conn.WriteJSON(sub)
	}

	symbols := c.watched()
	for i := 0; i < len(symbols); i += subscribeBatch {
		end := i + subscribeBatch
		if end > len(symbols) {
			end = len(symbols)
		}
		args := make([]map[string]string, 0, end-i)
		for _, s := range symbols[i:end] {
			args = append(args, map[string]string{"channel": "tickers", "instId": s})
		}
		if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
			return err
		}
		if end < len(symbols) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interBatchDelay):
			}
		}
	}
	return nil
}

func (c *Client) login(conn *websocket.Conn) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + "GET" + "/users/self/verify"
	h := hmac.New(sha256.New, []byte(c.cfg.Exchange.APISecret))
	h.Write([]byte(msg))

	return conn.WriteJSON(map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     c.cfg.Exchange.APIKey,
			"passphrase": c.cfg.Exchange.Passphrase,
			"timestamp":  ts,
			"sign":       base64.StdEncoding.EncodeToString(h.Sum(nil)),
		}},
	})
}

// readLoop pumps frames until the connection dies. A ping goes out every
// pingInterval; silence past the read deadline counts as connection death.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, kind feedKind) {
	stopPing := make(chan struct{})
	defer close(stopPing)

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pingInterval + pongGrace))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("[STREAM] %s: read: %v", kind, err)
			return
		}
		if string(msg) == "pong" {
			continue
		}
		c.handleFrame(kind, msg)
	}
}
