// Package config loads service settings from an optional YAML file overlaid with
// PANCHANG_-prefixed environment variables.
//
// Keys are dotted paths ("http.port"). An environment variable names the same path with
// underscores, so PANCHANG_HTTP_PORT sets http.port and PANCHANG_OAUTH_GITHUB_CLIENTID sets
// oauth.github.clientID.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/dispatch"
	"github.com/sakif/panchang/internal/mail"
	"github.com/sakif/panchang/internal/panchang"
)

const (
	// EnvConfigPath names the YAML file to load. When it is unset DefaultPath is tried and may
	// be missing.
	EnvConfigPath = "PANCHANG_CONFIG"
	DefaultPath   = "config.yaml"

	envPrefix = "PANCHANG_"
)

type Config struct {
	HTTP     HTTP     `koanf:"http"`
	DB       DB       `koanf:"db"`
	Log      Log      `koanf:"log"`
	Session  Session  `koanf:"session"`
	OAuth    OAuth    `koanf:"oauth"`
	Feed     Feed     `koanf:"feed"`
	Mail     Mail     `koanf:"mail"`
	Dispatch Dispatch `koanf:"dispatch"`
}

type HTTP struct {
	Port int `koanf:"port" validate:"min=1,max=65535"`
	// BaseURL is the externally visible origin, used to build OAuth callback URLs.
	BaseURL string `koanf:"baseURL" validate:"url"`
}

type DB struct {
	Path string `koanf:"path" validate:"required"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

type Session struct {
	Secret string        `koanf:"secret" validate:"required,min=16"`
	TTL    time.Duration `koanf:"ttl"`
}

type OAuthApp struct {
	ClientID     string `koanf:"clientID"`
	ClientSecret string `koanf:"clientSecret"`
}

// Enabled reports whether the app is registered. Providers without credentials are not
// offered at /auth/login.
func (a OAuthApp) Enabled() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

type OAuth struct {
	GitHub   OAuthApp `koanf:"github"`
	LinkedIn OAuthApp `koanf:"linkedin"`
}

type Feed struct {
	BaseURL   string        `koanf:"baseURL" validate:"url"`
	PlacesURL string        `koanf:"placesURL" validate:"url"`
	Timeout   time.Duration `koanf:"timeout"`
}

type Mail struct {
	Provider    string `koanf:"provider" validate:"oneof=sendgrid smtp log"`
	SendGridKey string `koanf:"sendgridKey" validate:"required_if=Provider sendgrid"`
	From        string `koanf:"from" validate:"required"`
	SMTP        SMTP   `koanf:"smtp"`
}

// SMTP configures the relay used when mail.provider is smtp.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"min=0,max=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// TLS is starttls, ssl or none.
	TLS string `koanf:"tls" validate:"oneof=starttls ssl none"`
}

type Dispatch struct {
	// Interval runs the batch every period. It is ignored when DailyAt is set.
	Interval time.Duration `koanf:"interval"`
	// DailyAt runs the batch once a day at HH:MM in Timezone.
	DailyAt  string        `koanf:"dailyAt" validate:"omitempty,datetime=15:04"`
	Timezone string        `koanf:"timezone"`
	Workers  int           `koanf:"workers" validate:"min=1"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Location resolves Timezone, defaulting to the local zone.
func (d Dispatch) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: dispatch.timezone: %w", err)
	}
	return loc, nil
}

// Load reads the file named by PANCHANG_CONFIG (or config.yaml if present), overlays the
// environment, fills defaults and validates the result.
func Load() (*Config, error) {
	path, required := os.Getenv(EnvConfigPath), true
	if path == "" {
		path, required = DefaultPath, false
	}
	return load(path, required, os.Environ)
}

func load(path string, required bool, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if required || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: %w", err)
	}

	existing := k.Raw()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      envPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			if key == "CONFIG" {
				return "", nil
			}
			return canonicalKey(key, existing), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	cfg := new(Config)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.BaseURL == "" {
		c.HTTP.BaseURL = fmt.Sprintf("http://localhost:%d", c.HTTP.Port)
	}
	c.HTTP.BaseURL = strings.TrimRight(c.HTTP.BaseURL, "/")
	if c.DB.Path == "" {
		c.DB.Path = "data/panchang.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Session.TTL <= 0 {
		c.Session.TTL = auth.DefaultSessionTTL
	}
	if c.Feed.BaseURL == "" {
		c.Feed.BaseURL = panchang.DefaultFeedURL
	}
	if c.Feed.PlacesURL == "" {
		c.Feed.PlacesURL = panchang.DefaultPlacesURL
	}
	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = panchang.DefaultTimeout
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = mail.ProviderLog
	}
	if c.Mail.SMTP.TLS == "" {
		c.Mail.SMTP.TLS = mail.SMTPStartTLS
	}
	if c.Mail.SMTP.Port == 0 {
		switch c.Mail.SMTP.TLS {
		case mail.SMTPSSL:
			c.Mail.SMTP.Port = 465
		case mail.SMTPNoTLS:
			c.Mail.SMTP.Port = 25
		default:
			c.Mail.SMTP.Port = 587
		}
	}
	if c.Mail.From == "" {
		c.Mail.From = "PyPanchang <noreply@panchang.local>"
	}
	// One minute suits local testing; production sets 24h or dispatch.dailyAt.
	if c.Dispatch.Interval <= 0 {
		c.Dispatch.Interval = time.Minute
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = dispatch.DefaultWorkers
	}
	if c.Dispatch.Timeout <= 0 {
		c.Dispatch.Timeout = dispatch.DefaultTimeout
	}
}

// Validate checks field constraints. Load calls it after applying defaults.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.Mail.Provider == mail.ProviderSMTP && c.Mail.SMTP.Host == "" {
		return fmt.Errorf("config: mail.smtp.host is required for the smtp provider")
	}
	if _, err := c.Dispatch.Location(); err != nil {
		return err
	}
	return nil
}

// canonicalKey turns HTTP_BASEURL into http.baseURL, reusing the spelling of any key the
// file already set so both sources land on the same path.
func canonicalKey(raw string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(raw), "_")
	out := make([]string, 0, len(segments))
	current := existing

	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if key, next, ok := findSegment(current, seg); ok {
			out = append(out, key)
			current = next
			continue
		}
		out = append(out, seg)
		current = nil
	}
	return strings.Join(out, ".")
}

func findSegment(m map[string]any, seg string) (string, map[string]any, bool) {
	needle := normalize(seg)
	for key, value := range m {
		if normalize(key) == needle {
			child, _ := value.(map[string]any)
			return key, child, true
		}
	}
	return "", nil, false
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
