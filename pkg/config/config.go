package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vncconn/pkg/db"
	"vncconn/pkg/store"
)

// Store backends accepted by VNC_HISTORY_STORE.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendConsul = "consul"
)

const defaultDialTimeout = 15 * time.Second

// Config is the environment of the connection subsystem.
type Config struct {
	Backend      string
	HistoryPath  string
	MySQL        db.MySQLConfig
	ConsulAddr   string
	ConsulToken  string
	ConsulPrefix string
	DialTimeout  time.Duration
	CAFile       string
	JWTSecret    string
}

// Load reads .env from the working directory when present, then the
// environment.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	c := Config{
		Backend:     strings.ToLower(getenv("VNC_HISTORY_STORE", BackendSQLite)),
		HistoryPath: getenv("VNC_HISTORY_PATH", defaultHistoryPath()),
		MySQL: db.MySQLConfig{
			DSN:      os.Getenv("MYSQL_DSN"),
			Host:     getenv("MYSQL_HOST", "127.0.0.1"),
			Port:     getenv("MYSQL_PORT", "3306"),
			User:     getenv("MYSQL_USER", "root"),
			Password: getenv("MYSQL_PASS", ""),
			Database: getenv("MYSQL_DB", "vncconn"),
		},
		ConsulAddr:   getenv("CONSUL_ADDR", "127.0.0.1:8500"),
		ConsulToken:  os.Getenv("CONSUL_TOKEN"),
		ConsulPrefix: getenv("CONSUL_PREFIX", "vncconn"),
		DialTimeout:  defaultDialTimeout,
		CAFile:       os.Getenv("CA_FILE"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}
	if v := os.Getenv("DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("DIAL_TIMEOUT: %w", err)
		}
		c.DialTimeout = d
	}
	if err := c.SetBackend(c.Backend); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SetBackend selects the history store, e.g. from a command line flag.
func (c *Config) SetBackend(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case BackendMemory, BackendSQLite, BackendMySQL, BackendConsul:
		c.Backend = name
		return nil
	}
	return fmt.Errorf("unknown history store %q", name)
}

// Opener returns the store opener for the configured backend.
func (c Config) Opener() store.Opener {
	switch c.Backend {
	case BackendMemory:
		return store.NewMemoryStore().Opener()
	case BackendMySQL:
		return store.MySQLOpener(c.MySQL)
	case BackendConsul:
		return store.ConsulOpener(c.ConsulAddr, c.ConsulToken, c.ConsulPrefix)
	default:
		return store.SQLiteOpener(c.HistoryPath)
	}
}

func defaultHistoryPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vncconn", "history.db")
	}
	return "history.db"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
