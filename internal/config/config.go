// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, no code execution is possible.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const appName = "reelscout"

// SharedTokenEnv overrides the token API's shared fallback token.
const SharedTokenEnv = "REELSCOUT_SHARED_TOKEN"

// Config holds all application configuration.
type Config struct {
	Debug          bool   `toml:"debug"`
	LogFormat      string `toml:"log_format" validate:"oneof=text json"`
	Player         string `toml:"player" validate:"oneof=mpv vlc iina celluloid"`
	Quality        string `toml:"quality" validate:"oneof=4k 1080 720 480 360"`
	SubsLanguage   string `toml:"subs_language"`
	DownloadDir    string `toml:"download_dir" validate:"required"`
	AdapterTimeout string `toml:"adapter_timeout" validate:"omitempty,duration"`

	Store       StoreConfig     `toml:"store"`
	Relay       RelayConfig     `toml:"relay"`
	Remote      RemoteConfig    `toml:"remote"`
	Bridge      BridgeConfig    `toml:"bridge"`
	Providers   ProvidersConfig `toml:"providers"`
	Catalog     CatalogConfig   `toml:"catalog"`
	Server      ServerConfig    `toml:"server"`
	Preferences Preferences     `toml:"preferences"`
}

// StoreConfig selects the persistence backend for failure memory and
// last-successful sources.
type StoreConfig struct {
	Driver    string `toml:"driver" validate:"oneof=sqlite memory redis"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr" validate:"required_if=Driver redis"`
	RedisDB   int    `toml:"redis_db" validate:"min=0"`
}

// RelayConfig lists the proxy workers scraping requests are balanced across.
type RelayConfig struct {
	URLs        []string `toml:"urls" validate:"dive,url"`
	Fingerprint bool     `toml:"fingerprint"`
}

// RemoteConfig points at a resolver serving the scrape event stream.
type RemoteConfig struct {
	URL string `toml:"url" validate:"omitempty,url"`
}

// BridgeConfig toggles the local privileged bridge.
type BridgeConfig struct {
	Enabled bool `toml:"enabled"`
}

type ProvidersConfig struct {
	DLHub    DLHubConfig    `toml:"dlhub"`
	TokenAPI TokenAPIConfig `toml:"tokenapi"`
}

type DLHubConfig struct {
	Enabled bool   `toml:"enabled"`
	Base    string `toml:"base" validate:"omitempty,url"`
}

type TokenAPIConfig struct {
	Enabled     bool   `toml:"enabled"`
	Base        string `toml:"base" validate:"omitempty,url"`
	SharedToken string `toml:"shared_token"`
}

// CatalogConfig configures the catalog sources and embeds the local runner
// and resolver server use.
type CatalogConfig struct {
	FlixHQBase string        `toml:"flixhq_base" validate:"required,url"`
	DecryptAPI string        `toml:"decrypt_api" validate:"omitempty,url"`
	Addons     []AddonConfig `toml:"addons" validate:"dive"`
}

// AddonConfig is a JSON stream addon exposing /stream/{type}/{id}.json.
type AddonConfig struct {
	ID   string `toml:"id" validate:"required"`
	Name string `toml:"name"`
	URL  string `toml:"url" validate:"required,url"`
}

type ServerConfig struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
}

// Preferences are the user's ordering and filtering choices.
type Preferences struct {
	DisabledSources      []string `toml:"disabled_sources"`
	DisabledEmbeds       []string `toml:"disabled_embeds"`
	SourceOrder          []string `toml:"source_order"`
	EnableSourceOrder    bool     `toml:"enable_source_order"`
	EmbedOrder           []string `toml:"embed_order"`
	EnableEmbedOrder     bool     `toml:"enable_embed_order"`
	EnableLastSuccessful bool     `toml:"enable_last_successful"`
	Token                string   `toml:"token"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LogFormat:      "text",
		Player:         "mpv",
		Quality:        "1080",
		SubsLanguage:   "english",
		DownloadDir:    "~/Videos/" + appName,
		AdapterTimeout: "20s",
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Bridge: BridgeConfig{Enabled: true},
		Providers: ProvidersConfig{
			DLHub:    DLHubConfig{Base: "https://dlhub.example"},
			TokenAPI: TokenAPIConfig{Base: "https://tokenapi.example"},
		},
		Catalog: CatalogConfig{
			FlixHQBase: "https://flixhq.to",
			DecryptAPI: "https://dec.eatmynerds.live",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8099",
		},
		Preferences: Preferences{
			EnableLastSuccessful: true,
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "getting home directory")
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file from the OS filesystem and merges it with
// defaults. If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads the config file at path from fs. A ".env" file next to it is
// consulted for the shared token.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrap(err, "reading config")
	}

	if err := cfg.applyEnv(fs, filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}

// applyEnv fills the shared token from the process environment, falling back
// to the dotenv file.
func (c *Config) applyEnv(fs afero.Fs, envPath string) error {
	if tok := os.Getenv(SharedTokenEnv); tok != "" {
		c.Providers.TokenAPI.SharedToken = tok
		return nil
	}
	data, err := afero.ReadFile(fs, envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "reading .env")
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "parsing %s", envPath)
	}
	if tok := env[SharedTokenEnv]; tok != "" {
		c.Providers.TokenAPI.SharedToken = tok
	}
	return nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	c.Player = strings.ToLower(c.Player)
	c.Quality = strings.ToLower(c.Quality)
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// Timeout returns the per-adapter deadline, zero when unset.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.AdapterTimeout)
	if err != nil {
		return 0
	}
	return d
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "expanding home dir")
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// DataDir returns the XDG data directory used for the sqlite store.
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "getting home directory")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, appName), nil
}

// StorePath returns the sqlite database path, honouring store.path.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reelscout.db"), nil
}
