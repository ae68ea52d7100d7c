package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/billgraziano/dpapi"
	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and passed explicitly to every component
// that needs it. There is no package-level mutable state.
type Config struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// PasswordProtected holds the DPAPI-encrypted password; when set it takes
	// precedence over the plaintext field.
	PasswordProtected   string `yaml:"passwordProtected"`
	TotpSecret          string `yaml:"totpSecret"`
	TotpSecretProtected string `yaml:"totpSecretProtected"`
	CharacterName       string `yaml:"characterName"`

	TemplatesDir   string  `yaml:"templatesDir"`
	MatchThreshold float64 `yaml:"matchThreshold"`
	PollIntervalMs int     `yaml:"pollIntervalMs"`

	LauncherWindowTitle string `yaml:"launcherWindowTitle"`
	GameWindowTitle     string `yaml:"gameWindowTitle"`
	WindowWidth         int    `yaml:"windowWidth"`
	WindowHeight        int    `yaml:"windowHeight"`

	Discord struct {
		Enabled    bool   `yaml:"enabled"`
		WebhookURL string `yaml:"webhookUrl"`
	} `yaml:"discord"`
}

// CharacterNameEnv overrides the configured display name when set; an empty
// value (and an empty config field) disables the name-entry branch entirely.
const CharacterNameEnv = "LAUNCHPILOT_CHARACTER_NAME"

// Load reads, decodes and validates the configuration file. A missing
// required field is a startup failure: it aborts before any capture or input
// happens. On first run the config directory is seeded from the bundled
// template directory next to it.
func Load(path string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if seedErr := seedFromTemplate(path); seedErr != nil {
			return cfg, fmt.Errorf("config %s does not exist and could not be seeded: %w", path, seedErr)
		}
	}

	r, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("error loading %s: %w", path, err)
	}
	defer r.Close()

	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("error reading config %s: %w", path, err)
	}

	if cfg.PasswordProtected != "" {
		plain, err := dpapi.Decrypt(cfg.PasswordProtected)
		if err != nil {
			return cfg, fmt.Errorf("error decrypting protected password: %w", err)
		}
		cfg.Password = plain
	}
	if cfg.TotpSecretProtected != "" {
		plain, err := dpapi.Decrypt(cfg.TotpSecretProtected)
		if err != nil {
			return cfg, fmt.Errorf("error decrypting protected totp secret: %w", err)
		}
		cfg.TotpSecret = plain
	}

	if name := os.Getenv(CharacterNameEnv); name != "" {
		cfg.CharacterName = name
	}

	applyDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = "templates"
	}
	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		cfg.MatchThreshold = 0.8
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 500
	}
	if cfg.LauncherWindowTitle == "" {
		cfg.LauncherWindowTitle = "Bolt"
	}
	if cfg.GameWindowTitle == "" {
		cfg.GameWindowTitle = "RuneLite"
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1920
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 1080
	}
}

func validate(cfg Config) error {
	var missing []string
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// seedFromTemplate copies the bundled "<dir>/template" directory over the
// config directory so a fresh checkout starts from a working skeleton.
func seedFromTemplate(path string) error {
	dir := filepath.Dir(path)
	tpl := filepath.Join(dir, "template")
	if _, err := os.Stat(tpl); err != nil {
		return fmt.Errorf("no template directory at %s: %w", tpl, err)
	}
	return cp.Copy(tpl, dir)
}
