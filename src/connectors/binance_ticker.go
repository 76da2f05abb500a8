package connectors

// REST price feed against the Binance spot ticker endpoint.
// RESTY ONLY + INTERNAL RETRY

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultBinanceBaseURL  = "https://api.binance.com"
	tickerPricePath        = "/api/v3/ticker/price"
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

type binanceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerClient fetches latest prices for a set of symbols. Prices arrive as
// strings on the wire and are parsed through decimal before being handed to
// the ledger as float64 marks.
type TickerClient struct {
	baseURL string
	http    *resty.Client
}

func NewTickerClient(baseURL string, retryCount int) *TickerClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBinanceBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &TickerClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// FetchPrices returns the latest price for each requested symbol. Symbols
// missing from the exchange response are simply absent from the result.
func (c *TickerClient) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {

	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	// /ticker/price?symbols=["BTCUSDT","ETHUSDT"]
	quoted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		quoted = append(quoted, fmt.Sprintf("%q", strings.ToUpper(s)))
	}

	var tickers []binanceTickerResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", "["+strings.Join(quoted, ",")+"]").
		SetResult(&tickers).
		Get(tickerPricePath)

	if err != nil {
		logger.WithError(err).WithField("connector", "binance_ticker").
			Error("Ticker request failed")
		return nil, err
	}

	if resp.IsError() {
		err := fmt.Errorf("ticker request returned %s: %s", resp.Status(), resp.String())
		logger.WithError(err).WithField("connector", "binance_ticker").
			Error("Ticker request rejected")
		return nil, err
	}

	prices := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		price, err := decimal.NewFromString(ticker.Price)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"connector": "binance_ticker",
				"symbol":    ticker.Symbol,
				"raw":       ticker.Price,
			}).WithError(err).Warn("Skipping unparseable ticker price")
			continue
		}

		value, _ := price.Float64()
		prices[ticker.Symbol] = value
	}

	return prices, nil
}
