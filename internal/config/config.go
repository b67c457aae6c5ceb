package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port           int  `yaml:"port"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	DevMode        bool `yaml:"dev_mode"`
}

type Persistence struct {
	DataDir         string `yaml:"data_dir"`
	AutosaveMinutes int    `yaml:"autosave_minutes"`
}

type MarketData struct {
	Tickers              []string `yaml:"tickers"`
	RateWindowSeconds    int      `yaml:"rate_window_seconds"`
	MaxRequestsPerWindow int      `yaml:"max_requests_per_window"`
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
	MaxPriceJumpPercent  float64  `yaml:"max_price_jump_percent"`
	FetchConcurrency     int      `yaml:"fetch_concurrency"`
	FinnhubAPIKey        string   `yaml:"finnhub_api_key"`
}

type Chat struct {
	MaxMessageLength    int `yaml:"max_message_length"`
	MaxMessagesPerUser  int `yaml:"max_messages_per_user"`
	MaxMessagesPerAgent int `yaml:"max_messages_per_agent"`
}

type Performance struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

type Trading struct {
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"`
	FeePerTrade        float64 `yaml:"fee_per_trade"`
}

type AgentSpec struct {
	ID           string  `yaml:"id"`
	Model        string  `yaml:"model"`
	Color        string  `yaml:"color"`
	StartingCash float64 `yaml:"starting_cash"`
}

type BenchmarkSpec struct {
	ID     string `yaml:"id"`
	Ticker string `yaml:"ticker"`
}

// Competition describes one competition type; each enabled entry becomes
// its own simulation instance.
type Competition struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Mode             string `yaml:"mode"` // simulated | historical | hybrid
	Enabled          bool   `yaml:"enabled"`
	ChatEnabled      bool   `yaml:"chat_enabled"`
	BlindMode        bool   `yaml:"blind_mode"`
	StartDate        string `yaml:"start_date"` // YYYY-MM-DD, replay start for historical/hybrid
	TradingDays      int    `yaml:"trading_days"`
	HoursPerDay      int    `yaml:"hours_per_day"`
	TradeWindowHours int    `yaml:"trade_window_hours"`
	ReplayTickMs     int    `yaml:"replay_tick_ms"`
	CatchUpTickMs    int    `yaml:"catch_up_tick_ms"`
	RealtimeTickSecs int    `yaml:"realtime_tick_seconds"`
}

type Root struct {
	LogLevel         string          `yaml:"log_level"`
	SchedulerEnabled *bool           `yaml:"scheduler_enabled"`
	Server           Server          `yaml:"server"`
	Persistence      Persistence     `yaml:"persistence"`
	MarketData       MarketData      `yaml:"market_data"`
	Chat             Chat            `yaml:"chat"`
	Performance      Performance     `yaml:"performance"`
	Trading          Trading         `yaml:"trading"`
	Agents           []AgentSpec     `yaml:"agents"`
	Benchmarks       []BenchmarkSpec `yaml:"benchmarks"`
	Competitions     []Competition   `yaml:"competitions"`
}

// Load reads the YAML config file, fills defaults, then applies environment
// overrides. Configuration is static for the process lifetime.
func Load(path string) (Root, error) {
	var c Root

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return c, fmt.Errorf("read config: %w", err)
		}
		// No file is fine: defaults + env carry a runnable setup.
	} else if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	c.applyEnv()

	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

// SchedulerOn reports whether tick schedulers should run. On unless the
// file or environment explicitly turns it off.
func (c *Root) SchedulerOn() bool {
	return c.SchedulerEnabled == nil || *c.SchedulerEnabled
}

func (c *Root) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SchedulerEnabled == nil {
		on := true
		c.SchedulerEnabled = &on
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TimeoutSeconds == 0 {
		c.Server.TimeoutSeconds = 60
	}
	if c.Persistence.DataDir == "" {
		c.Persistence.DataDir = "data"
	}
	if c.Persistence.AutosaveMinutes == 0 {
		c.Persistence.AutosaveMinutes = 15
	}

	if len(c.MarketData.Tickers) == 0 {
		c.MarketData.Tickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA"}
	}
	if c.MarketData.RateWindowSeconds == 0 {
		c.MarketData.RateWindowSeconds = 60
	}
	if c.MarketData.MaxRequestsPerWindow == 0 {
		c.MarketData.MaxRequestsPerWindow = 30
	}
	if c.MarketData.TimeoutSeconds == 0 {
		c.MarketData.TimeoutSeconds = 10
	}
	if c.MarketData.MaxPriceJumpPercent == 0 {
		c.MarketData.MaxPriceJumpPercent = 25
	}
	if c.MarketData.FetchConcurrency == 0 {
		c.MarketData.FetchConcurrency = 4
	}

	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 280
	}
	if c.Chat.MaxMessagesPerUser == 0 {
		c.Chat.MaxMessagesPerUser = 2
	}
	if c.Chat.MaxMessagesPerAgent == 0 {
		c.Chat.MaxMessagesPerAgent = 5
	}

	if c.Performance.RiskFreeRate == 0 {
		c.Performance.RiskFreeRate = 0.05
	}
	if c.Trading.MaxPositionSizePct == 0 {
		c.Trading.MaxPositionSizePct = 10
	}

	if len(c.Agents) == 0 {
		c.Agents = []AgentSpec{
			{ID: "agent-alpha", Model: "gpt-4o", Color: "#4f8ef7", StartingCash: 1_000_000},
			{ID: "agent-beta", Model: "claude-sonnet", Color: "#f7a64f", StartingCash: 1_000_000},
			{ID: "agent-gamma", Model: "gemini-pro", Color: "#5fc98e", StartingCash: 1_000_000},
		}
	}
	if len(c.Benchmarks) == 0 {
		c.Benchmarks = []BenchmarkSpec{
			{ID: "sp500", Ticker: "SPY"},
			{ID: "nasdaq100", Ticker: "QQQ"},
		}
	}
	if len(c.Competitions) == 0 {
		c.Competitions = []Competition{
			{ID: "daily", Name: "Daily Arena", Mode: "hybrid", Enabled: true, ChatEnabled: true},
			{ID: "blind", Name: "Blind Arena", Mode: "simulated", Enabled: true, BlindMode: true},
		}
	}
	for i := range c.Competitions {
		cc := &c.Competitions[i]
		if cc.Mode == "" {
			cc.Mode = "simulated"
		}
		if cc.TradingDays == 0 {
			cc.TradingDays = 30
		}
		if cc.HoursPerDay == 0 {
			cc.HoursPerDay = 7 // 9:30-16:00 mapped to intraday hours 0..6
		}
		if cc.TradeWindowHours == 0 {
			cc.TradeWindowHours = 2
		}
		if cc.ReplayTickMs == 0 {
			cc.ReplayTickMs = 2000
		}
		if cc.CatchUpTickMs == 0 {
			cc.CatchUpTickMs = 500
		}
		if cc.RealtimeTickSecs == 0 {
			cc.RealtimeTickSecs = 60
		}
	}
}

// applyEnv layers environment variables over file values. A .env file is
// honoured when present.
func (c *Root) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Persistence.DataDir = v
	}
	if v := os.Getenv("AUTOSAVE_MINUTES"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			c.Persistence.AutosaveMinutes = m
		}
	}
	// Only a set variable overrides the file value.
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		on := v == "true" || v == "1"
		c.SchedulerEnabled = &on
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.MarketData.FinnhubAPIKey = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		parts := strings.Split(v, ",")
		tickers := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
				tickers = append(tickers, t)
			}
		}
		if len(tickers) > 0 {
			c.MarketData.Tickers = tickers
		}
	}
}

func (c *Root) validate() error {
	seen := map[string]bool{}
	for _, cc := range c.Competitions {
		if cc.ID == "" {
			return fmt.Errorf("competition with empty id")
		}
		if seen[cc.ID] {
			return fmt.Errorf("duplicate competition id %q", cc.ID)
		}
		seen[cc.ID] = true
		switch cc.Mode {
		case "simulated", "historical", "hybrid":
		default:
			return fmt.Errorf("competition %q: unknown mode %q", cc.ID, cc.Mode)
		}
	}
	for _, a := range c.Agents {
		if a.StartingCash < 0 {
			return fmt.Errorf("agent %q: negative starting cash", a.ID)
		}
	}
	return nil
}
