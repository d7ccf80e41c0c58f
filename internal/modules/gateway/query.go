package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"

	"github.com/bytedance/sonic"
)

func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderState, error) {
	path := "/api/v5/trade/order?instId=" + url.QueryEscape(symbol) + "&ordId=" + url.QueryEscape(orderID)
	data, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return OrderState{}, fmt.Errorf("GetOrderStatus: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID   string `json:"ordId"`
			ClOrdID string `json:"clOrdId"`
			InstID  string `json:"instId"`
			State   string `json:"state"`
			AvgPx   string `json:"avgPx"`
			AccFill string `json:"accFillSz"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return OrderState{}, fmt.Errorf("GetOrderStatus decode: %w; body=%s", err, string(data))
	}
	if resp.Code != "0" {
		return OrderState{}, fmt.Errorf("GetOrderStatus: %w", &apiError{Code: resp.Code, Msg: resp.Msg, HTTP: 200})
	}
	if len(resp.Data) == 0 {
		return OrderState{}, ErrOrderNotFound
	}

	d := resp.Data[0]
	avg, _ := strconv.ParseFloat(d.AvgPx, 64)
	fill, _ := strconv.ParseFloat(d.AccFill, 64)
	return OrderState{
		OrderID:   d.OrdID,
		ClientTag: d.ClOrdID,
		Symbol:    d.InstID,
		Status:    models.NormalizeOrderStatus(d.State),
		AvgPrice:  avg,
		FilledQty: fill,
	}, nil
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]ExchangePosition, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v5/account/positions", "")
	if err != nil {
		return nil, fmt.Errorf("GetOpenPositions: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstID  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			Last    string `json:"last"`
			MarkPx  string `json:"markPx"`
			Upl     string `json:"upl"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("GetOpenPositions decode: %w", err)
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("GetOpenPositions: %w", &apiError{Code: resp.Code, Msg: resp.Msg, HTTP: 200})
	}

	res := make([]ExchangePosition, 0, len(resp.Data))
	for _, d := range resp.Data {
		pos, _ := strconv.ParseFloat(d.Pos, 64)
		if pos == 0 {
			continue
		}
		avg, _ := strconv.ParseFloat(d.AvgPx, 64)
		last, _ := strconv.ParseFloat(d.Last, 64)
		if last == 0 {
			last, _ = strconv.ParseFloat(d.MarkPx, 64)
		}
		upl, _ := strconv.ParseFloat(d.Upl, 64)

		side := models.SideLong
		if d.PosSide == "short" {
			side = models.SideShort
		}
		res = append(res, ExchangePosition{
			Symbol:        d.InstID,
			Side:          side,
			Size:          pos,
			EntryPrice:    avg,
			LastPrice:     last,
			UnrealizedPnl: upl,
		})
	}
	return res, nil
}

// GetClosableQuantity is the live exchange exposure for symbol/side; zero means
// nothing is left to close on the venue.
func (c *Client) GetClosableQuantity(ctx context.Context, symbol string, side models.Side) (float64, error) {
	positions, err := c.GetOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("GetClosableQuantity: %w", err)
	}
	for _, p := range positions {
		if helper.SymbolsMatch(p.Symbol, symbol) && p.Side == side {
			return p.Size, nil
		}
	}
	return 0, nil
}

func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	path := "/api/v5/market/ticker?instId=" + url.QueryEscape(symbol)
	data, err := c.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0, fmt.Errorf("GetTickerPrice: %w", err)
	}

	var resp struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("GetTickerPrice decode: %w", err)
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return 0, fmt.Errorf("GetTickerPrice: empty response code=%s", resp.Code)
	}
	px, err := strconv.ParseFloat(resp.Data[0].Last, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("GetTickerPrice: bad price %q", resp.Data[0].Last)
	}
	return px, nil
}
