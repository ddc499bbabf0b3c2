package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/calvinwijaya/blackjack-engine/internal/game"
)

// Config represents the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Table  TableSettings  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	Port        int    `hcl:"port,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	FrontendURL string `hcl:"frontend_url,optional"`
	DBPath      string `hcl:"db_path,optional"`
}

// TableSettings are the defaults applied to new sessions
type TableSettings struct {
	Decks           int   `hcl:"decks,optional"`
	StartingBalance int   `hcl:"starting_balance,optional"`
	Seed            int64 `hcl:"seed,optional"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:     "localhost",
			Port:        8080,
			LogLevel:    "info",
			FrontendURL: "http://localhost:5173",
			DBPath:      "./data/blackjack.db",
		},
		Table: TableSettings{
			Decks:           game.DefaultDecks,
			StartingBalance: 1000,
		},
	}
}

// Load reads configuration from an HCL file. A missing file yields Default().
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = def.Server.FrontendURL
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = def.Server.DBPath
	}
	if c.Table.Decks == 0 {
		c.Table.Decks = def.Table.Decks
	}
	if c.Table.StartingBalance == 0 {
		c.Table.StartingBalance = def.Table.StartingBalance
	}
}

// Validate checks the configuration after overrides are applied
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Server.LogLevel)
	}
	if err := game.ValidateDecks(c.Table.Decks); err != nil {
		return err
	}
	if c.Table.StartingBalance <= 0 {
		return fmt.Errorf("starting balance must be positive, got %d", c.Table.StartingBalance)
	}
	return nil
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
