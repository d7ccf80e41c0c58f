package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trade_engine/internal/modules/config"
)

// Client talks OKX v5 REST. One instance per account.
type Client struct {
	http      *http.Client
	name      string
	restBase  string
	apiKey    string
	apiSecret string
	passph    string
}

func NewClient(cfg *config.Config) *Client {
	base := cfg.Exchange.RESTBase
	if base == "" {
		base = "https://www.okx.com"
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		name:      cfg.Exchange.Name,
		restBase:  base,
		apiKey:    cfg.Exchange.APIKey,
		apiSecret: cfg.Exchange.APISecret,
		passph:    cfg.Exchange.Passphrase,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// do issues a signed request and returns the raw body. Non-2xx responses come
// back as *apiError so callers can classify them.
func (c *Client) do(ctx context.Context, method, requestPath, body string) ([]byte, error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.restBase+requestPath, rd)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, &apiError{Code: "", Msg: string(data), HTTP: resp.StatusCode}
	}
	return data, nil
}
