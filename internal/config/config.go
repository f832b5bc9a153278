package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"swaphouse/server/internal/round"
	"swaphouse/server/logging"
)

// EnvPrefix namespaces environment overrides, e.g. SWAPHOUSE_ROUND_PENALTY.
const EnvPrefix = "SWAPHOUSE"

type Config struct {
	ListenAddr      string
	ClientDir       string
	MapFile         string
	Seed            string
	ShutdownTimeout time.Duration

	Round   RoundConfig
	Logging LoggingConfig
	Influx  InfluxConfig
	Input   InputConfig

	OTelEnabled        bool
	OTelExportPath     string
	OTelExportInterval time.Duration
}

type RoundConfig struct {
	TickInterval  time.Duration
	MatchDuration time.Duration
	SwapInterval  time.Duration
	VoteDuration  time.Duration
	Penalty       time.Duration
	InventorySize int
}

type LoggingConfig struct {
	Sinks       []string
	MinSeverity string
	Pretty      bool
	JSONPath    string
}

type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// InputConfig bounds how many player-input frames a connection may send.
type InputConfig struct {
	Rate  float64
	Burst int
}

func setDefaults() {
	viper.SetDefault("listenAddr", ":8080")
	viper.SetDefault("clientDir", "../client")
	viper.SetDefault("mapFile", "")
	viper.SetDefault("seed", "")
	viper.SetDefault("shutdownTimeout", "5s")

	defaults := round.DefaultConfig()
	viper.SetDefault("round.tickInterval", defaults.TickInterval.String())
	viper.SetDefault("round.matchDuration", defaults.MatchDuration.String())
	viper.SetDefault("round.swapInterval", defaults.SwapInterval.String())
	viper.SetDefault("round.voteDuration", defaults.VoteDuration.String())
	viper.SetDefault("round.penalty", defaults.Penalty.String())
	viper.SetDefault("round.inventorySize", defaults.InventorySize)

	viper.SetDefault("logging.sinks", []string{logging.SinkZerolog})
	viper.SetDefault("logging.minSeverity", "info")
	viper.SetDefault("logging.pretty", false)
	viper.SetDefault("logging.jsonPath", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "swaphouse")
	viper.SetDefault("influx.bucket", "rounds")

	viper.SetDefault("otel.enabled", true)
	viper.SetDefault("otel.exportPath", "")
	viper.SetDefault("otel.exportInterval", "1m")

	viper.SetDefault("input.rate", 60)
	viper.SetDefault("input.burst", 20)
}

// Load sets defaults, reads the optional config file at path (JSON or YAML by
// extension) and applies SWAPHOUSE_* environment overrides.
func Load(path string) (Config, error) {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Config{
		ListenAddr:      viper.GetString("listenAddr"),
		ClientDir:       viper.GetString("clientDir"),
		MapFile:         viper.GetString("mapFile"),
		Seed:            viper.GetString("seed"),
		ShutdownTimeout: viper.GetDuration("shutdownTimeout"),
		Round: RoundConfig{
			TickInterval:  viper.GetDuration("round.tickInterval"),
			MatchDuration: viper.GetDuration("round.matchDuration"),
			SwapInterval:  viper.GetDuration("round.swapInterval"),
			VoteDuration:  viper.GetDuration("round.voteDuration"),
			Penalty:       viper.GetDuration("round.penalty"),
			InventorySize: viper.GetInt("round.inventorySize"),
		},
		Logging: LoggingConfig{
			Sinks:       splitList(viper.GetStringSlice("logging.sinks")),
			MinSeverity: viper.GetString("logging.minSeverity"),
			Pretty:      viper.GetBool("logging.pretty"),
			JSONPath:    viper.GetString("logging.jsonPath"),
		},
		Influx: InfluxConfig{
			Enabled: viper.GetBool("influx.enabled"),
			URL:     viper.GetString("influx.url"),
			Token:   viper.GetString("influx.token"),
			Org:     viper.GetString("influx.org"),
			Bucket:  viper.GetString("influx.bucket"),
		},
		Input: InputConfig{
			Rate:  viper.GetFloat64("input.rate"),
			Burst: viper.GetInt("input.burst"),
		},
		OTelEnabled:        viper.GetBool("otel.enabled"),
		OTelExportPath:     viper.GetString("otel.exportPath"),
		OTelExportInterval: viper.GetDuration("otel.exportInterval"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// splitList accepts both list values and a single comma separated string as
// environment variables deliver it.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listenAddr is required"))
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"round.tickInterval", c.Round.TickInterval},
		{"round.matchDuration", c.Round.MatchDuration},
		{"round.swapInterval", c.Round.SwapInterval},
		{"round.voteDuration", c.Round.VoteDuration},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.key))
		}
	}
	if c.Round.Penalty < 0 {
		errs = append(errs, errors.New("round.penalty must not be negative"))
	}
	if c.Round.InventorySize < 1 {
		errs = append(errs, errors.New("round.inventorySize must be at least 1"))
	}
	if _, ok := logging.ParseSeverity(c.Logging.MinSeverity); !ok {
		errs = append(errs, fmt.Errorf("unknown logging.minSeverity %q", c.Logging.MinSeverity))
	}
	for _, sink := range c.Logging.Sinks {
		switch sink {
		case logging.SinkConsole, logging.SinkJSON, logging.SinkZerolog, logging.SinkMemory:
		case logging.SinkInflux:
			errs = append(errs, errors.New("enable the influx sink with influx.enabled"))
		default:
			errs = append(errs, fmt.Errorf("unknown logging sink %q", sink))
		}
	}
	if c.OTelEnabled && c.OTelExportInterval <= 0 {
		errs = append(errs, errors.New("otel.exportInterval must be positive"))
	}
	if c.Input.Rate <= 0 || c.Input.Burst < 1 {
		errs = append(errs, errors.New("input.rate and input.burst must be positive"))
	}
	return errors.Join(errs...)
}

// RoundTunables overlays the configured tunables on the stock game balance.
func (c Config) RoundTunables() round.Config {
	rc := round.DefaultConfig()
	rc.TickInterval = c.Round.TickInterval
	rc.MatchDuration = c.Round.MatchDuration
	rc.SwapInterval = c.Round.SwapInterval
	rc.VoteDuration = c.Round.VoteDuration
	rc.Penalty = c.Round.Penalty
	rc.InventorySize = c.Round.InventorySize
	return rc
}

// EventLogging builds the event router configuration.
func (c Config) EventLogging() logging.Config {
	lc := logging.DefaultConfig()
	lc.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	if sev, ok := logging.ParseSeverity(c.Logging.MinSeverity); ok {
		lc.MinimumSeverity = sev
	}
	lc.Console.Pretty = c.Logging.Pretty
	lc.JSON.FilePath = c.Logging.JSONPath
	if c.Influx.Enabled {
		lc.EnabledSinks = append(lc.EnabledSinks, logging.SinkInflux)
		lc.Influx.URL = c.Influx.URL
		lc.Influx.Token = c.Influx.Token
		lc.Influx.Org = c.Influx.Org
		lc.Influx.Bucket = c.Influx.Bucket
	}
	return lc
}
