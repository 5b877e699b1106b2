package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the application.
// Note: Passphrase is prompted at runtime and stored in memory - use GetPassphraseBytes()
type Config struct {
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port string `envconfig:"PORT" default:"8080"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"leveldb"`
	StorePath    string `envconfig:"STORE_PATH" default:"./data/wallet"`

	Network           string        `envconfig:"NETWORK" default:"mainnet"`
	RPCURLs           Endpoints     `envconfig:"RPC_URLS"`
	InfuraAPIKey      string        `envconfig:"INFURA_API_KEY"`
	ExternalSignerURL string        `envconfig:"EXTERNAL_SIGNER_URL"`
	RPCTimeout        time.Duration `envconfig:"RPC_TIMEOUT" default:"30s"`
	ConfirmTimeout    time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"3m"`
	WithdrawCooldown  int           `envconfig:"WITHDRAW_COOLDOWN_MINUTES" default:"0"`

	ScryptN      int    `envconfig:"SCRYPT_N" default:"262144"`
	FiatCurrency string `envconfig:"FIAT_CURRENCY" default:"usd"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Endpoints maps network names to RPC URLs.
// Decoded from "name:url,name:url"; only the first colon separates name from url.
type Endpoints map[string]string

// Decode implements envconfig.Decoder
func (e *Endpoints) Decode(value string) error {
	m := make(Endpoints)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, ":")
		if !ok || name == "" || url == "" {
			return fmt.Errorf("invalid RPC_URLS item %q: want name:url", pair)
		}
		m[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	*e = m
	return nil
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
// Values from a .env file in the working directory are applied first
// but never override variables already set in the environment.
func Init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if err := c.validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

func (c *Config) validate() error {
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 || c.ScryptN > 1<<20 {
		return fmt.Errorf("SCRYPT_N must be a power of two in [2, 1048576], got %d", c.ScryptN)
	}
	if c.WithdrawCooldown < 0 {
		return fmt.Errorf("WITHDRAW_COOLDOWN_MINUTES cannot be negative")
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH cannot be empty")
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// Addr returns host:port for the HTTP server
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

var passphraseBytes []byte

// PromptForPassphrase prompts the user for the wallet passphrase in the terminal.
// The passphrase is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassphrase() error {
	raw, err := PromptSecret("Enter wallet passphrase: ")
	if err != nil {
		return err
	}
	defer clear(raw)
	if len(raw) == 0 {
		return errors.New("passphrase cannot be empty")
	}

	SetPassphrase(raw)
	return nil
}

// PromptSecret reads one line from the terminal without echo.
// Caller must zero the returned slice after use.
func PromptSecret(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter secrets")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return raw, nil
}

// SetPassphrase stores a copy of p as the in-memory passphrase
func SetPassphrase(p []byte) {
	clear(passphraseBytes)
	passphraseBytes = make([]byte, len(p))
	copy(passphraseBytes, p)
}

// GetPassphraseBytes returns the passphrase stored in memory (from PromptForPassphrase).
// Returns an error if the passphrase was not set.
// Caller must zero the returned slice after use for security.
func GetPassphraseBytes() ([]byte, error) {
	if len(passphraseBytes) == 0 {
		return nil, errors.New("passphrase not set: call PromptForPassphrase at startup")
	}
	out := make([]byte, len(passphraseBytes))
	copy(out, passphraseBytes)
	return out, nil
}

// ClearPassphrase wipes the in-memory passphrase
func ClearPassphrase() {
	clear(passphraseBytes)
	passphraseBytes = nil
}
