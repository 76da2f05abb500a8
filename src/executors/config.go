package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols       []string      `envconfig:"MARK_SYMBOLS" default:"BTCUSDT,ETHUSDT,XRPUSDT,BNBUSDT,SOLUSDT"`
	TickerBaseURL string        `envconfig:"TICKER_BASE_URL" default:"https://api.binance.com"`
	TickerRetries int           `envconfig:"TICKER_RETRIES" default:"3"`
	MarkPeriod    time.Duration `envconfig:"MARK_PERIOD" default:"30s"`
	HistoryPeriod time.Duration `envconfig:"HISTORY_PERIOD" default:"5m"`
	UseStream     bool          `envconfig:"USE_PRICE_STREAM" default:"false"`
	StreamBaseURL string        `envconfig:"STREAM_BASE_URL" default:"wss://stream.binance.com:9443"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
