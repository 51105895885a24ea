// Package okx streams L2 order book data over WebSocket and decodes it into
// book events. The worker owns the connection lifecycle: dial, subscribe-less
// stream read, exponential-backoff reconnect.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"execsim/internal/domain"
	"execsim/internal/event"
)

const (
	maxRetries  = 10
	baseDelay   = 1 * time.Second
	maxDelay    = 60 * time.Second
	readTimeout = 60 * time.Second

	// resyncEvery bounds drift from any dropped delta: a full snapshot is
	// re-emitted after this many streamed messages.
	resyncEvery = 500
)

// bookMessage is one full-depth L2 frame from the stream.
type bookMessage struct {
	Timestamp string     `json:"timestamp"`
	Exchange  string     `json:"exchange"`
	Symbol    string     `json:"symbol"`
	Bids      [][]string `json:"bids"` // [price, quantity] strings
	Asks      [][]string `json:"asks"`
}

// Worker handles the L2 WebSocket connection for one symbol.
type Worker struct {
	url    string
	symbol string
	inbox  chan<- event.Event
	log    *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Local shadow of the last decoded book, used to diff full frames into
	// per-level deltas. Accessed only from the read loop.
	seq    uint64
	bids   map[string]domain.PriceLevel
	asks   map[string]domain.PriceLevel
	frames int
	synced bool
}

// NewWorker creates a new L2 feed worker.
func NewWorker(url, symbol string, inbox chan<- event.Event, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{url: url, symbol: symbol, inbox: inbox, log: log}
}

// Connect starts the WebSocket connection loop in the background.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.log.Warn("feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := calculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	// Force a fresh snapshot after every (re)connect.
	w.synced = false

	w.log.Info("feed connected", slog.String("url", w.url), slog.String("symbol", w.symbol))
	return nil
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(ctx, msg)
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg []byte) {
	var frame bookMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		w.log.Debug("undecodable frame dropped", slog.Any("error", err))
		return
	}
	if frame.Symbol != "" && frame.Symbol != w.symbol {
		return
	}

	ts := parseTimestamp(frame.Timestamp)
	bids, bidMap := parseLevels(frame.Bids)
	asks, askMap := parseLevels(frame.Asks)

	w.frames++
	if !w.synced || w.frames%resyncEvery == 0 || topCrossed(w.bids, askMap) || topCrossed(bidMap, w.asks) {
		w.seq++
		w.send(ctx, &event.Snapshot{Seq: w.seq, Ts: ts, Bids: bids, Asks: asks})
		w.bids, w.asks = bidMap, askMap
		w.synced = true
		return
	}

	for _, d := range w.diff(domain.Buy, w.bids, bidMap, ts) {
		w.send(ctx, d)
	}
	for _, d := range w.diff(domain.Sell, w.asks, askMap, ts) {
		w.send(ctx, d)
	}
	w.bids, w.asks = bidMap, askMap
}

// diff turns two full-frame level maps into per-level deltas, removals first
// so intermediate states stay uncrossed.
func (w *Worker) diff(side domain.Side, old, cur map[string]domain.PriceLevel, ts time.Time) []*event.Delta {
	var deltas []*event.Delta
	for key, lvl := range old {
		if _, ok := cur[key]; !ok {
			w.seq++
			d := event.AcquireDelta()
			d.Seq, d.Ts, d.Side, d.Price, d.Quantity = w.seq, ts, side, lvl.Price, decimal.Zero
			deltas = append(deltas, d)
		}
	}
	for key, lvl := range cur {
		if prev, ok := old[key]; ok && prev.Quantity.Equal(lvl.Quantity) {
			continue
		}
		w.seq++
		d := event.AcquireDelta()
		d.Seq, d.Ts, d.Side, d.Price, d.Quantity = w.seq, ts, side, lvl.Price, lvl.Quantity
		deltas = append(deltas, d)
	}
	return deltas
}

func (w *Worker) send(ctx context.Context, ev event.Event) {
	select {
	case <-ctx.Done():
	case w.inbox <- ev:
	}
}

// topCrossed reports whether the best level of the bid map meets or crosses
// the best level of the ask map.
func topCrossed(bids, asks map[string]domain.PriceLevel) bool {
	if len(bids) == 0 || len(asks) == 0 {
		return false
	}
	var bestBid, bestAsk decimal.Decimal
	first := true
	for _, lvl := range bids {
		if first || lvl.Price.GreaterThan(bestBid) {
			bestBid = lvl.Price
		}
		first = false
	}
	first = true
	for _, lvl := range asks {
		if first || lvl.Price.LessThan(bestAsk) {
			bestAsk = lvl.Price
		}
		first = false
	}
	return bestBid.GreaterThanOrEqual(bestAsk)
}

func parseLevels(raw [][]string) ([]domain.PriceLevel, map[string]domain.PriceLevel) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	byPrice := make(map[string]domain.PriceLevel, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil || qty.Sign() <= 0 {
			continue
		}
		lvl := domain.PriceLevel{Price: price, Quantity: qty}
		levels = append(levels, lvl)
		byPrice[pair[0]] = lvl
	}
	return levels, byPrice
}

func parseTimestamp(raw string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Now().UTC()
}

func calculateBackoff(retryCount int) time.Duration {
	// Cap retry count to prevent overflow (2^6 = 64 seconds > max 60s)
	if retryCount > 6 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect tears down the connection and waits for the loop to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
