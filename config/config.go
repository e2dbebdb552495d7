package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Outages   OutagesConfig   `mapstructure:"outages"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Market    MarketConfig    `mapstructure:"market"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Collector CollectorConfig `mapstructure:"collector"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

type SimulatorConfig struct {
	SamplingRate     float64       `mapstructure:"sampling_rate"`
	FaultProbability float64       `mapstructure:"fault_probability"`
	FaultDuration    time.Duration `mapstructure:"fault_duration"`
	Seed             int64         `mapstructure:"seed"`
}

// LimitsConfig holds the per-unit voltage classification thresholds.
type LimitsConfig struct {
	CriticalLow  float64 `mapstructure:"critical_low"`
	CriticalHigh float64 `mapstructure:"critical_high"`
	DegradedLow  float64 `mapstructure:"degraded_low"`
	DegradedHigh float64 `mapstructure:"degraded_high"`
}

type OutagesConfig struct {
	DBPath  string `mapstructure:"db_path"`
	CSVPath string `mapstructure:"csv_path"`
}

type WeatherConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	Locations []string      `mapstructure:"locations"`
}

type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NarrativeConfig struct {
	AccountID string        `mapstructure:"account_id"`
	APIToken  string        `mapstructure:"api_token"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CollectorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
	Enabled  bool          `mapstructure:"enabled"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/gridagent")
	}

	// Set defaults
	viper.SetDefault("simulator.sampling_rate", 50.0)
	viper.SetDefault("simulator.fault_probability", 0.001)
	viper.SetDefault("simulator.fault_duration", "100ms")
	viper.SetDefault("simulator.seed", 0)
	viper.SetDefault("limits.critical_low", 0.95)
	viper.SetDefault("limits.critical_high", 1.05)
	viper.SetDefault("limits.degraded_low", 0.97)
	viper.SetDefault("limits.degraded_high", 1.03)
	viper.SetDefault("outages.db_path", "./outages.db")
	viper.SetDefault("outages.csv_path", "")
	viper.SetDefault("weather.api_key", "")
	viper.SetDefault("weather.base_url", "https://opendata.aemet.es/opendata/api")
	viper.SetDefault("weather.timeout", "30s")
	viper.SetDefault("weather.retries", 3)
	viper.SetDefault("weather.locations", []string{"Madrid", "Barcelona"})
	viper.SetDefault("market.base_url", "https://apidatos.ree.es")
	viper.SetDefault("market.timeout", "30s")
	viper.SetDefault("narrative.account_id", "")
	viper.SetDefault("narrative.api_token", "")
	viper.SetDefault("narrative.model", "@cf/meta/llama-2-7b-chat-int8")
	viper.SetDefault("narrative.base_url", "https://api.cloudflare.com/client/v4/accounts")
	viper.SetDefault("narrative.timeout", "20s")
	viper.SetDefault("collector.interval", "5m")
	viper.SetDefault("collector.window", "30m")
	viper.SetDefault("collector.enabled", true)
	viper.SetDefault("api.port", 8046)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "gridagent")
	viper.SetDefault("mqtt.client_id", "grid-incident-agent")
	viper.SetDefault("database.path", "./gridagent.db")

	// Environment overrides carried over from the original deployment
	viper.BindEnv("limits.critical_low", "VOLT_LIMIT_CRITICAL_LOW")
	viper.BindEnv("limits.critical_high", "VOLT_LIMIT_CRITICAL_HIGH")
	viper.BindEnv("limits.degraded_low", "VOLT_LIMIT_DEGRADED_LOW")
	viper.BindEnv("limits.degraded_high", "VOLT_LIMIT_DEGRADED_HIGH")
	viper.BindEnv("narrative.account_id", "CF_ACCOUNT_ID")
	viper.BindEnv("narrative.api_token", "CF_API_TOKEN")
	viper.BindEnv("weather.api_key", "AEMET_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
