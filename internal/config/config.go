package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
)

// EliminationPolicy names the terminal status given to a dethroned or
// timed-out leader.
type EliminationPolicy string

const (
	EliminateExpire EliminationPolicy = "expire"
	EliminateReject EliminationPolicy = "reject"
)

// FailurePolicy names what happens to an inscribing proposal when its
// order fails: requeued to active, or rejected outright.
type FailurePolicy string

const (
	FailureRequeue FailurePolicy = "requeue"
	FailureReject  FailurePolicy = "reject"
)

type Config struct {
	DBDialect string // postgres only
	DBDsn     string // DSN string passed to GORM driver

	ChainAPIURL  string // esplora/mempool-style REST base URL
	MarketAPIURL string // inscription marketplace base URL
	MarketAPIKey string
	WalletAPIURL string // funding wallet service base URL

	PollInterval      time.Duration
	ReconcileInterval time.Duration

	LeaderboardMinBlocks int64 // consecutive blocks a leader must survive
	MaxLeaderBlocks      int64 // timeout for a leadership attempt

	EliminationPolicy EliminationPolicy
	// SweepContenders, when set, expires losing contenders whenever the
	// leader changes, keeping the active pool bounded.
	SweepContenders bool
	FailurePolicy   FailurePolicy

	InscribeFeeRate int64 // sat/vB used for order quotes
	InscribePostage int64 // sats carried by the inscription output

	AdminListen string
	AdminToken  string // empty disables the admin facade

	Debug bool // if true: show logs, no TUI; if false: no logs, show TUI
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvInt(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %d\n", key, v, def)
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid %s=%q, using %s\n", key, v, def)
		return def
	}
	return d
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

func parseEliminationPolicy(v string) EliminationPolicy {
	switch strings.ToLower(v) {
	case "reject":
		return EliminateReject
	default:
		return EliminateExpire
	}
}

func parseFailurePolicy(v string) FailurePolicy {
	switch strings.ToLower(v) {
	case "reject":
		return FailureReject
	default:
		return FailureRequeue
	}
}

func Load() Config {
	cfg := Config{
		ChainAPIURL:  getenv("CHAIN_API_URL", "https://mempool.space/api"),
		MarketAPIURL: getenv("MARKET_API_URL", "https://open-api.unisat.io"),
		MarketAPIKey: os.Getenv("MARKET_API_KEY"),
		WalletAPIURL: getenv("WALLET_API_URL", "http://localhost:8332"),

		PollInterval:      getenvDuration("POLL_INTERVAL", 30*time.Second),
		ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", time.Minute),

		LeaderboardMinBlocks: getenvInt("LEADERBOARD_MIN_BLOCKS", 2),
		MaxLeaderBlocks:      getenvInt("MAX_LEADER_BLOCKS", 10),

		EliminationPolicy: parseEliminationPolicy(os.Getenv("ELIMINATION_POLICY")),
		SweepContenders:   getenvBool("SWEEP_CONTENDERS", false),
		FailurePolicy:     parseFailurePolicy(os.Getenv("FAILURE_POLICY")),

		InscribeFeeRate: getenvInt("INSCRIBE_FEE_RATE", 10),
		InscribePostage: getenvInt("INSCRIBE_POSTAGE", 546),

		AdminListen: getenv("ADMIN_LISTEN", ":8080"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),

		Debug: getenvBool("DEBUG", false),
	}

	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		if dialect, dsn, err := parseDatabaseURL(dbURL); err == nil {
			cfg.DBDialect = dialect
			cfg.DBDsn = dsn
		} else {
			fmt.Fprintf(os.Stderr, "warning: invalid DATABASE_URL, disabling persistence: %v\n", err)
		}
	}

	return cfg
}

func (c Config) String() string {
	return fmt.Sprintf("chain=%s market=%s db=%s", c.ChainAPIURL, c.MarketAPIURL, c.DBDialect)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"chain=%s market=%s wallet=%s db=%s dsn=%s poll=%s reconcile=%s min_blocks=%d max_blocks=%d policy=%s sweep=%v",
		c.ChainAPIURL,
		c.MarketAPIURL,
		c.WalletAPIURL,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.PollInterval,
		c.ReconcileInterval,
		c.LeaderboardMinBlocks,
		c.MaxLeaderBlocks,
		c.EliminationPolicy,
		c.SweepContenders,
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
