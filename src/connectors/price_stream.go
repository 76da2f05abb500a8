package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultBinanceStreamURL = "wss://stream.binance.com:9443"
	streamReadTimeout       = 90 * time.Second
	streamReconnectDelay    = 5 * time.Second
)

// PriceUpdateFunc receives every mark pushed by the stream.
type PriceUpdateFunc func(symbol string, price float64)

type miniTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// PriceStream subscribes to Binance miniTicker streams and forwards each
// update to the callback. Reconnects with a fixed delay until the context
// is canceled.
type PriceStream struct {
	baseURL  string
	symbols  []string
	onUpdate PriceUpdateFunc
	log      *logger.Entry
}

func NewPriceStream(baseURL string, symbols []string, onUpdate PriceUpdateFunc) *PriceStream {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBinanceStreamURL
	}

	return &PriceStream{
		baseURL:  strings.TrimRight(baseURL, "/"),
		symbols:  symbols,
		onUpdate: onUpdate,
		log:      logger.WithField("connector", "price_stream"),
	}
}

func (s *PriceStream) streamURL() string {
	streams := make([]string, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		streams = append(streams, strings.ToLower(symbol)+"@miniTicker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))
}

// Run blocks until ctx is canceled, maintaining the subscription across
// connection drops.
func (s *PriceStream) Run(ctx context.Context) error {

	if len(s.symbols) == 0 {
		return fmt.Errorf("price stream needs at least one symbol")
	}

	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.WithError(err).Warn("Stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	s.log.WithField("symbols", len(s.symbols)).Info("Price stream connected")

	// close the connection when the context ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			return err
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event miniTickerEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.log.WithError(err).Debug("Skipping unparseable stream message")
			continue
		}
		if event.Data.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(event.Data.Close)
		if err != nil {
			s.log.WithFields(logger.Fields{
				"symbol": event.Data.Symbol,
				"raw":    event.Data.Close,
			}).Debug("Skipping unparseable stream price")
			continue
		}

		value, _ := price.Float64()
		s.onUpdate(event.Data.Symbol, value)
	}
}
