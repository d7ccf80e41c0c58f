package gateway

import (
	"context"
	"fmt"
	"net/http"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"

	"github.com/bytedance/sonic"
)

// CancelOrder cancels one order by id. The id alone does not say whether the
// order is plain or conditional, so the plain endpoint is tried first and an
// unknown-order rejection falls through to the algo endpoint.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := c.cancelOne(ctx, "/api/v5/trade/cancel-order",
		map[string]string{"instId": symbol, "ordId": orderID})
	if err == nil || !IsSoftReject(err) {
		return err
	}
	return c.cancelOne(ctx, "/api/v5/trade/cancel-algos",
		[]map[string]string{{"instId": symbol, "algoId": orderID}})
}

func (c *Client) cancelOne(ctx context.Context, path string, body any) error {
	payload, _ := sonic.Marshal(body)

	data, err := c.do(ctx, http.MethodPost, path, string(payload))
	if err != nil {
		return fmt.Errorf("CancelOrder: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	_ = sonic.Unmarshal(data, &resp)

	if resp.Code != "0" {
		return fmt.Errorf("CancelOrder: %w", &apiError{Code: resp.Code, Msg: resp.Msg, HTTP: 200})
	}
	if len(resp.Data) == 0 || resp.Data[0].SCode != "0" {
		sCode := ""
		sMsg := string(data)
		if len(resp.Data) > 0 {
			sCode, sMsg = resp.Data[0].SCode, resp.Data[0].SMsg
		}
		return fmt.Errorf("CancelOrder reject: %w", &apiError{Code: sCode, Msg: sMsg, HTTP: 200})
	}
	return nil
}

// CancelAllOpenOrders sweeps every pending order for a symbol, plain and
// conditional. Used after a close so no sibling stop or take-profit stays live.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	var firstErr error
	for _, path := range []string{
		"/api/v5/trade/orders-pending?instId=" + symbol,
		"/api/v5/trade/orders-algo-pending?ordType=conditional&instId=" + symbol,
	} {
		data, err := c.do(ctx, http.MethodGet, path, "")
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("CancelAllOpenOrders list: %w", err)
			}
			continue
		}
		var resp struct {
			Data []struct {
				OrdID  string `json:"ordId"`
				AlgoID string `json:"algoId"`
			} `json:"data"`
		}
		if err := sonic.Unmarshal(data, &resp); err != nil {
			continue
		}
		for _, d := range resp.Data {
			id := d.OrdID
			if id == "" {
				id = d.AlgoID
			}
			if id == "" {
				continue
			}
			if err := c.CancelOrder(ctx, symbol, id); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CloseMarket flattens size contracts of a position at market.
func (c *Client) CloseMarket(ctx context.Context, symbol string, side models.Side, size float64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("CloseMarket: size <= 0")
	}

	ordSide := "sell" // closing a long
	if side == models.SideShort {
		ordSide = "buy"
	}

	body := map[string]any{
		"instId":     symbol,
		"tdMode":     "cross",
		"side":       ordSide,
		"posSide":    string(side),
		"ordType":    "market",
		"sz":         helper.FormatSize(size),
		"reduceOnly": true,
	}
	payload, _ := sonic.Marshal(body)

	data, err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", string(payload))
	if err != nil {
		return "", fmt.Errorf("CloseMarket: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("CloseMarket decode: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("CloseMarket: empty data code=%s msg=%s", resp.Code, resp.Msg)
	}
	d := resp.Data[0]
	if resp.Code != "0" || d.SCode != "0" {
		code := resp.Code
		msg := resp.Msg
		if d.SCode != "0" {
			code, msg = d.SCode, d.SMsg
		}
		return "", fmt.Errorf("CloseMarket: %w", &apiError{Code: code, Msg: msg, HTTP: 200})
	}
	return d.OrdID, nil
}
