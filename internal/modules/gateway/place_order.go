package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"

	"github.com/bytedance/sonic"
)

func (c *Client) PlaceOrder(ctx context.Context, r PlaceOrderRequest) (string, error) {
	var side string
	switch r.PosSide {
	case models.SideLong:
		side = "buy"
	case models.SideShort:
		side = "sell"
	default:
		return "", fmt.Errorf("PlaceOrder: unsupported posSide=%q", r.PosSide)
	}
	// protective exits close the position, so the order side flips
	if r.ReduceOnly || r.TriggerPrice > 0 {
		if side == "buy" {
			side = "sell"
		} else {
			side = "buy"
		}
	}

	if r.Qty <= 0 {
		return "", fmt.Errorf("PlaceOrder: qty <= 0")
	}

	body := map[string]string{
		"instId":  r.Symbol,
		"tdMode":  "cross",
		"side":    side,
		"posSide": string(r.PosSide),
		"sz":      helper.FormatSize(r.Qty),
	}
	if r.ClientTag != "" {
		body["clOrdId"] = r.ClientTag
	}

	requestPath := "/api/v5/trade/order"
	switch {
	case r.TriggerPrice > 0:
		// conditional protective order; market execution on trigger
		requestPath = "/api/v5/trade/order-algo"
		body["ordType"] = "conditional"
		if r.Kind == models.ExitStop {
			body["slTriggerPx"] = helper.FormatPrice(r.TriggerPrice)
			body["slOrdPx"] = "-1"
			body["slTriggerPxType"] = "last"
		} else {
			body["tpTriggerPx"] = helper.FormatPrice(r.TriggerPrice)
			body["tpOrdPx"] = "-1"
			body["tpTriggerPxType"] = "last"
		}
	case strings.EqualFold(r.OrdType, "limit"):
		body["ordType"] = "limit"
		body["px"] = helper.FormatPrice(r.Price)
	default:
		body["ordType"] = "market"
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("PlaceOrder marshal: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return "", fmt.Errorf("PlaceOrder: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID  string `json:"ordId"`
			AlgoID string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("PlaceOrder decode: %w; body=%s", err, string(data))
	}

	if len(resp.Data) > 0 && resp.Data[0].SCode != "0" {
		return "", fmt.Errorf("PlaceOrder rejected: %w",
			&apiError{Code: resp.Data[0].SCode, Msg: resp.Data[0].SMsg, HTTP: 200})
	}
	if resp.Code != "0" {
		return "", fmt.Errorf("PlaceOrder: %w",
			&apiError{Code: resp.Code, Msg: resp.Msg, HTTP: 200})
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("PlaceOrder: empty data RAW=%s", string(data))
	}

	id := resp.Data[0].OrdID
	if id == "" {
		id = resp.Data[0].AlgoID
	}
	if id == "" {
		return "", fmt.Errorf("PlaceOrder: empty order id RAW=%s", string(data))
	}
	return id, nil
}
