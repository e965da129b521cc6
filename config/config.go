package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bellapacxx/bingo-live/utils/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "BINGO"

const (
	StorageMemory     = "memory"
	StorageRelational = "relational"
	StorageLocal      = "local"

	TransportSSE  = "sse"
	TransportMesh = "mesh"
	TransportBoth = "both"
)

type Config struct {
	Bind              string
	Port              int
	DatabaseURL       string
	DatabasePath      string
	Storage           string
	LocalDir          string
	LocalKey          string
	Transport         string
	JoinSecret        string
	CoordinatorSecret string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	SilenceTimeout    time.Duration
	SweepInterval     time.Duration
	NATSURL           string
	NATSSubject       string
	LogFormat         string
	Verbose           bool
}

// LoadEnv reads .env into the process environment if one exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Info("[Config] No .env file found, reading environment variables")
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Storage {
	case StorageMemory, StorageLocal:
	case StorageRelational:
		if c.DatabaseURL == "" && c.DatabasePath == "" {
			return errors.New("relational storage needs --database-url or --database-path")
		}
	default:
		return fmt.Errorf("unknown storage %q (memory, relational or local)", c.Storage)
	}
	if c.Storage == StorageLocal && c.LocalDir == "" {
		return errors.New("local storage needs --local-dir")
	}
	switch c.Transport {
	case TransportSSE, TransportMesh, TransportBoth:
	default:
		return fmt.Errorf("unknown transport %q (sse, mesh or both)", c.Transport)
	}
	if c.HeartbeatInterval <= 0 || c.SilenceTimeout <= 0 || c.SweepInterval <= 0 {
		return errors.New("heartbeat, silence and sweep intervals must be positive")
	}
	if c.SilenceTimeout <= c.SweepInterval {
		return fmt.Errorf("--silence-timeout (%s) must exceed --sweep-interval (%s)", c.SilenceTimeout, c.SweepInterval)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("unknown log format %q (json or console)", c.LogFormat)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

func (c *Config) SSE() bool  { return c.Transport == TransportSSE || c.Transport == TransportBoth }
func (c *Config) Mesh() bool { return c.Transport == TransportMesh || c.Transport == TransportBoth }

// BindFlags declares every setting on cmd's persistent flags and applies
// BINGO_* environment values to the ones not given on the command line.
// Environment values that do not parse are reported, one error per flag.
func BindFlags(cmd *cobra.Command, cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: BINGO_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 4000, "port to listen on (env: BINGO_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN for relational storage (env: BINGO_DATABASE_URL)")
	fs.StringVar(&cfg.DatabasePath, "database-path", "", "sqlite file for relational storage (env: BINGO_DATABASE_PATH)")
	fs.StringVar(&cfg.Storage, "storage", StorageMemory, "memory, relational or local (env: BINGO_STORAGE)")
	fs.StringVar(&cfg.LocalDir, "local-dir", "data", "directory for local storage documents (env: BINGO_LOCAL_DIR)")
	fs.StringVar(&cfg.LocalKey, "local-key", "default", "host key naming the local storage document (env: BINGO_LOCAL_KEY)")
	fs.StringVar(&cfg.Transport, "transport", TransportBoth, "sse, mesh or both (env: BINGO_TRANSPORT)")
	fs.StringVar(&cfg.JoinSecret, "join-secret", "", "shared secret for mesh peers, random when empty (env: BINGO_JOIN_SECRET)")
	fs.StringVar(&cfg.CoordinatorSecret, "coordinator-secret", "", "HS256 key for coordinator tokens (env: BINGO_COORDINATOR_SECRET)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"http://localhost:3000"}, "CORS origins (env: BINGO_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", 30*time.Second, "keepalive event cadence (env: BINGO_HEARTBEAT_INTERVAL)")
	fs.DurationVar(&cfg.SilenceTimeout, "silence-timeout", 25*time.Second, "drop connections silent for this long (env: BINGO_SILENCE_TIMEOUT)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 5*time.Second, "how often silent connections are swept (env: BINGO_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.NATSURL, "nats-url", "", "mirror events to this NATS server (env: BINGO_NATS_URL)")
	fs.StringVar(&cfg.NATSSubject, "nats-subject", "bingo.events", "subject prefix for mirrored events (env: BINGO_NATS_SUBJECT)")
	fs.StringVar(&cfg.LogFormat, "log-format", "json", "json or console (env: BINGO_LOG_FORMAT)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging (env: BINGO_VERBOSE)")

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, err)
			return
		}
		if err := v.BindEnv(f.Name); err != nil {
			errs = append(errs, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if s, ok := val.([]string); ok {
				val = strings.Join(s, ",")
			}
			if err := fs.Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
			}
		}
	})
	return errors.Join(errs...)
}
