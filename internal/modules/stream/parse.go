package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"

	"github.com/bytedance/sonic"
)

// wsFrame is the common envelope of every data frame.
type wsFrame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []json.RawMessage `json:"data"`
}

// handleFrame parses one raw frame into a normalized event and dispatches it.
// Unknown channels and malformed rows are logged and dropped.
func (c *Client) handleFrame(kind feedKind, msg []byte) {
	var frame wsFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		logger.Error("[STREAM] %s: bad frame: %v", kind, err)
		return
	}

	if frame.Event != "" {
		if frame.Event == "error" {
			logger.Error("[STREAM] %s: server error code=%s msg=%s", kind, frame.Code, frame.Msg)
		}
		return // subscribe/login acks
	}
	if len(frame.Data) == 0 {
		return
	}

	switch frame.Arg.Channel {
	case "orders":
		for _, row := range frame.Data {
			c.parseOrderRow(row)
		}
	case "positions":
		for _, row := range frame.Data {
			c.parsePositionRow(row)
		}
	case "tickers":
		for _, row := range frame.Data {
			c.parseTickerRow(frame.Arg.InstID, row)
		}
	default:
		// not subscribed to anything else; drop silently
	}
}

func (c *Client) parseOrderRow(row json.RawMessage) {
	var d struct {
		OrdID   string `json:"ordId"`
		AlgoID  string `json:"algoId"`
		ClOrdID string `json:"clOrdId"`
		InstID  string `json:"instId"`
		State   string `json:"state"`
		AvgPx   string `json:"avgPx"`
		AccFill string `json:"accFillSz"`
		UTime   string `json:"uTime"`
	}
	if err := sonic.Unmarshal(row, &d); err != nil {
		logger.Error("[STREAM] bad order row: %v", err)
		return
	}
	id := d.OrdID
	if id == "" {
		id = d.AlgoID
	}
	if id == "" || d.InstID == "" {
		return
	}

	avg, _ := strconv.ParseFloat(d.AvgPx, 64)
	fill, _ := strconv.ParseFloat(d.AccFill, 64)
	ts := time.Now()
	if ms, err := strconv.ParseInt(d.UTime, 10, 64); err == nil {
		ts = time.UnixMilli(ms)
	}

	c.dispatchOrder(models.OrderUpdate{
		OrderID:   id,
		ClientTag: d.ClOrdID,
		Exchange:  c.cfg.Exchange.Name,
		Symbol:    d.InstID,
		Status:    models.NormalizeOrderStatus(d.State),
		AvgPrice:  avg,
		FilledQty: fill,
		EventTime: ts,
	})
}

func (c *Client) parsePositionRow(row json.RawMessage) {
	var d struct {
		InstID  string `json:"instId"`
		Pos     string `json:"pos"`
		PosSide string `json:"posSide"`
		UTime   string `json:"uTime"`
	}
	if err := sonic.Unmarshal(row, &d); err != nil {
		logger.Error("[STREAM] bad position row: %v", err)
		return
	}
	if d.InstID == "" {
		return
	}

	pos, err := strconv.ParseFloat(d.Pos, 64)
	if err != nil {
		return
	}
	if d.PosSide == "short" {
		pos = -pos
	}
	ts := time.Now()
	if ms, err := strconv.ParseInt(d.UTime, 10, 64); err == nil {
		ts = time.UnixMilli(ms)
	}

	c.dispatchAccount(models.AccountUpdate{
		Symbol:      d.InstID,
		NetExposure: pos,
		EventTime:   ts,
	})
}

func (c *Client) parseTickerRow(instID string, row json.RawMessage) {
	var d struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	}
	if err := sonic.Unmarshal(row, &d); err != nil {
		return
	}
	sym := d.InstID
	if sym == "" {
		sym = instID
	}
	px, err := strconv.ParseFloat(d.Last, 64)
	if err != nil || px <= 0 {
		return
	}

	c.dispatchTick(models.PriceTick{Symbol: sym, Price: px, At: time.Now()})
}
