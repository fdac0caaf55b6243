package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gnemet/admingrid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Application struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Author  string `yaml:"author"`
	} `yaml:"application"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database []Database `yaml:"database"`

	Catalog struct {
		Path string `yaml:"path"`
		Lang string `yaml:"lang"`
	} `yaml:"catalog"`

	Grid   Grid                   `yaml:"grid"`
	Export admingrid.ExportConfig `yaml:"export"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Database is one connection entry; the entry marked default is used.
type Database struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	Default  bool   `yaml:"default"`
}

// DSN returns the lib/pq connection string.
func (d Database) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
	if d.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s,public", d.Schema)
	}
	return dsn
}

type Grid struct {
	// DataSourceURL is the origin relative model datasources resolve
	// against, e.g. http://localhost:8080.
	DataSourceURL  string            `yaml:"datasource_url"`
	PageLength     int               `yaml:"page_length"`
	LengthMenu     []int             `yaml:"length_menu"`
	FileBaseURL    string            `yaml:"file_base_url"`
	AdminBaseURL   string            `yaml:"admin_base_url"`
	Headers        map[string]string `yaml:"headers"`
	SettleDelay    time.Duration     `yaml:"settle_delay"`
	GapPolicy      string            `yaml:"gap_policy"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
}

// Load reads a YAML config file after loading .env, expanding ${VAR}
// references from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error as it might not exist in prod

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data with environment expansion and defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Catalog.Lang == "" {
		c.Catalog.Lang = "en"
	}
	if c.Grid.PageLength == 0 {
		c.Grid.PageLength = admingrid.DefaultPageLength
	}
	if len(c.Grid.LengthMenu) == 0 {
		c.Grid.LengthMenu = admingrid.DefaultLengthMenu
	}
	if c.Grid.SettleDelay == 0 {
		c.Grid.SettleDelay = admingrid.DefaultSettleDelay
	}
	if c.Grid.RequestTimeout == 0 {
		c.Grid.RequestTimeout = 30 * time.Second
	}
	if c.Grid.AdminBaseURL == "" {
		c.Grid.AdminBaseURL = "/admin"
	}
	if c.Grid.FileBaseURL == "" {
		c.Grid.FileBaseURL = "/files"
	}
}

func (c *Config) validate() error {
	if c.Grid.PageLength < 0 {
		return fmt.Errorf("grid.page_length must be positive, got %d", c.Grid.PageLength)
	}
	for _, n := range c.Grid.LengthMenu {
		if n <= 0 {
			return fmt.Errorf("grid.length_menu entries must be positive, got %d", n)
		}
	}
	if _, err := admingrid.ParseGapPolicy(c.Grid.GapPolicy); err != nil {
		return fmt.Errorf("grid.gap_policy: %w", err)
	}
	defaults := 0
	for _, d := range c.Database {
		if d.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%d databases are marked default", defaults)
	}
	return nil
}

// DefaultDatabase returns the default database entry, or the only one.
func (c *Config) DefaultDatabase() (Database, bool) {
	for _, d := range c.Database {
		if d.Default {
			return d, true
		}
	}
	if len(c.Database) == 1 {
		return c.Database[0], true
	}
	return Database{}, false
}

// GapPolicy returns the parsed grid gap policy.
func (c *Config) GapPolicy() admingrid.GapPolicy {
	p, _ := admingrid.ParseGapPolicy(c.Grid.GapPolicy)
	return p
}

// DataSource returns the endpoint of a model. Relative datasources, and the
// default /api/<identity>, are resolved against grid.datasource_url.
func (c *Config) DataSource(model *admingrid.ModelDef) string {
	ds := model.Datasource
	if ds == "" {
		ds = "/api/" + model.Identity
	}
	if strings.HasPrefix(ds, "http://") || strings.HasPrefix(ds, "https://") {
		return ds
	}
	return strings.TrimRight(c.Grid.DataSourceURL, "/") + "/" + strings.TrimLeft(ds, "/")
}

// GridOptions maps the grid section onto grid options.
func (c *Config) GridOptions(logger *slog.Logger) admingrid.GridOptions {
	return admingrid.GridOptions{
		PageLength:  c.Grid.PageLength,
		LengthMenu:  c.Grid.LengthMenu,
		SettleDelay: c.Grid.SettleDelay,
		GapPolicy:   c.GapPolicy(),
		URLs:        admingrid.URLBuilder{FileBase: c.Grid.FileBaseURL, AdminBase: c.Grid.AdminBaseURL},
		Logger:      logger,
	}
}

// NewLogger builds the slog logger the logging section asks for.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
