package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables. Nested keys are
// separated by a double underscore: STUDYHUB_DATA__CARDS sets data.cards.
const EnvPrefix = "STUDYHUB_"

// Config is the full application configuration.
type Config struct {
	Data    Data    `koanf:"data"`
	Deck    Deck    `koanf:"deck"`
	Server  Server  `koanf:"server"`
	Auth    Auth    `koanf:"auth"`
	Session Session `koanf:"session"`
	Stats   Stats   `koanf:"stats"`
	Log     Log     `koanf:"log"`
}

// Data locates the two flat files.
type Data struct {
	Cards  string `koanf:"cards" validate:"required"`
	Ledger string `koanf:"ledger" validate:"required"`
	// ResetCorruptLedger moves an unreadable ledger aside and starts a new
	// one instead of refusing to start.
	ResetCorruptLedger bool `koanf:"reset_corrupt_ledger"`
}

// Deck optionally fetches the card file from a git repository.
type Deck struct {
	GitURL      string `koanf:"git_url"`
	CheckoutDir string `koanf:"checkout_dir" validate:"required_with=GitURL"`
	File        string `koanf:"file" validate:"required_with=GitURL"`
}

type Server struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Auth is the login gate. Leaving both fields empty disables it.
type Auth struct {
	Email      string `koanf:"email" validate:"required_with=AccessCode"`
	AccessCode string `koanf:"access_code" validate:"required_with=Email"`
}

type Session struct {
	Shuffle bool `koanf:"shuffle"`
	Limit   int  `koanf:"limit" validate:"gte=0"`
}

type Stats struct {
	// Window is the number of recent events behind the running accuracy.
	Window int `koanf:"window" validate:"gte=0"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Enabled reports whether the login gate is active.
func (a Auth) Enabled() bool { return a.Email != "" || a.AccessCode != "" }

// SlogLevel maps the configured level name to a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"cards":                "data.cards",
	"ledger":               "data.ledger",
	"reset-corrupt-ledger": "data.reset_corrupt_ledger",
	"deck-git-url":         "deck.git_url",
	"deck-checkout-dir":    "deck.checkout_dir",
	"deck-file":            "deck.file",
	"addr":                 "server.addr",
	"auth-email":           "auth.email",
	"auth-access-code":     "auth.access_code",
	"shuffle":              "session.shuffle",
	"limit":                "session.limit",
	"stats-window":         "stats.window",
	"log-level":            "log.level",
	"log-format":           "log.format",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("studyhub", pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("env-file", ".env", "Path to an optional .env file")

	fs.String("cards", "data/flashcards.json", "Path to the flashcard file")
	fs.String("ledger", "data/progress.json", "Path to the progress ledger")
	fs.Bool("reset-corrupt-ledger", false, "Move a corrupt ledger aside and start a new one")
	fs.String("deck-git-url", "", "Git repository holding the flashcard file")
	fs.String("deck-checkout-dir", "repos", "Directory for git checkouts")
	fs.String("deck-file", "flashcards.json", "Flashcard file path inside the git repository")
	fs.String("addr", "127.0.0.1:8080", "HTTP listen address")
	fs.String("auth-email", "", "Login email; empty disables the login gate")
	fs.String("auth-access-code", "", "Login access code")
	fs.Bool("shuffle", false, "Shuffle cards when a session starts")
	fs.Int("limit", 0, "Maximum cards per session; 0 for all")
	fs.Int("stats-window", 20, "Number of recent answers behind the running accuracy")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	return fs
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from, in increasing priority: flag defaults,
// the YAML file named by --config, the .env file, the environment and
// explicitly set flags.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if path, _ := fs.GetString("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	envKey := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	flagKey := func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
