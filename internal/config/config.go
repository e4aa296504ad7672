package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Subject maps a group-name substring to a subject name.
type Subject struct {
	Key  string
	Name string
}

// Subjects is written as a YAML mapping; document order is kept because the
// first matching key wins during lookup.
type Subjects []Subject

func (s *Subjects) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: subjects must be a mapping of group key to subject name", node.Line)
	}
	out := make(Subjects, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: subject entries must be plain strings", k.Line)
		}
		out = append(out, Subject{Key: k.Value, Name: v.Value})
	}
	*s = out
	return nil
}

func (s Subjects) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
		)
	}
	return node, nil
}

// ConverterConfig names a converter selectable through the c query parameter.
type ConverterConfig struct {
	Name string `yaml:"name"`
	// UnknownSubject overrides the top-level fallback summary.
	UnknownSubject string   `yaml:"unknown_subject,omitempty"`
	Subjects       Subjects `yaml:"subjects"`
}

// CalendarConfig holds the fixed header written to every output calendar.
type CalendarConfig struct {
	Version   string `yaml:"version"`
	ProductID string `yaml:"prodid"`
}

// PrefetchConfig is a feed kept warm in the fetch cache.
type PrefetchConfig struct {
	Converter string `yaml:"converter"`
	URL       string `yaml:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// CacheDir holds fetched feeds for conditional requests and outage
	// fallback. Empty disables the cache.
	CacheDir string `yaml:"cache_dir"`

	// FetchTimeout bounds a single upstream request, e.g. "15s".
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	Calendar CalendarConfig `yaml:"calendar"`

	// UnknownSubject is the summary used when no subject can be derived.
	UnknownSubject string `yaml:"unknown_subject"`

	Converters []ConverterConfig `yaml:"converters"`

	// Refresh is a cron spec for prefetching; empty disables it.
	Refresh  string           `yaml:"refresh,omitempty"`
	Prefetch []PrefetchConfig `yaml:"prefetch,omitempty"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultLogLevel       = "info"
	defaultCacheDir       = "./var/ics-cache"
	defaultFetchTimeout   = 15 * time.Second
	defaultVersion        = "2.0"
	defaultProductID      = "-//calconv"
	defaultUnknownSubject = "Onbekend Vak"
)

// DefaultSomtodaySubjects is the subject table for Somtoday group codes.
// Longer keys precede their prefixes.
func DefaultSomtodaySubjects() Subjects {
	return Subjects{
		{Key: "WISA", Name: "Wiskunde A"},
		{Key: "WISB", Name: "Wiskunde B"},
		{Key: "WISC", Name: "Wiskunde C"},
		{Key: "WISD", Name: "Wiskunde D"},
		{Key: "WIS", Name: "Wiskunde"},
		{Key: "NAT", Name: "Natuurkunde"},
		{Key: "SCH", Name: "Scheikunde"},
		{Key: "BIO", Name: "Biologie"},
		{Key: "NLT", Name: "NLT"},
		{Key: "NED", Name: "Nederlands"},
		{Key: "ENG", Name: "Engels"},
		{Key: "DUI", Name: "Duits"},
		{Key: "FRA", Name: "Frans"},
		{Key: "GES", Name: "Geschiedenis"},
		{Key: "AK", Name: "Aardrijkskunde"},
		{Key: "ECO", Name: "Economie"},
		{Key: "BE", Name: "Bedrijfseconomie"},
		{Key: "MAAT", Name: "Maatschappijleer"},
		{Key: "INF", Name: "Informatica"},
		{Key: "LO", Name: "Lichamelijke opvoeding"},
		{Key: "CKV", Name: "CKV"},
		{Key: "MEN", Name: "Mentoruur"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		LogLevel:     defaultLogLevel,
		CacheDir:     defaultCacheDir,
		FetchTimeout: defaultFetchTimeout,
		Calendar: CalendarConfig{
			Version:   defaultVersion,
			ProductID: defaultProductID,
		},
		UnknownSubject: defaultUnknownSubject,
		Converters: []ConverterConfig{
			{Name: "somtoday", Subjects: DefaultSomtodaySubjects()},
		},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.Calendar.Version == "" {
		c.Calendar.Version = defaultVersion
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = defaultProductID
	}
	if c.UnknownSubject == "" {
		c.UnknownSubject = defaultUnknownSubject
	}
	if c.Converters == nil {
		c.Converters = []ConverterConfig{}
	}
	for i := range c.Converters {
		c.Converters[i].Name = strings.TrimSpace(c.Converters[i].Name)
	}
}

// Validate reports configuration errors Normalize cannot fix.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Converters))
	for i, conv := range c.Converters {
		if conv.Name == "" {
			return fmt.Errorf("converters[%d]: name is empty", i)
		}
		if seen[conv.Name] {
			return fmt.Errorf("converters[%d]: duplicate name %q", i, conv.Name)
		}
		seen[conv.Name] = true
	}
	for i, p := range c.Prefetch {
		if p.URL == "" {
			return fmt.Errorf("prefetch[%d]: url is empty", i)
		}
		if !seen[p.Converter] {
			return fmt.Errorf("prefetch[%d]: unknown converter %q", i, p.Converter)
		}
	}
	if len(c.Prefetch) > 0 && c.CacheDir == "" {
		return errors.New("prefetch requires cache_dir")
	}
	return nil
}

// Environment variables overriding file values.
const (
	EnvListen   = "CALCONV_LISTEN"
	EnvCacheDir = "CALCONV_CACHE_DIR"
	EnvLogLevel = "CALCONV_LOG_LEVEL"
)

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := os.LookupEnv(EnvCacheDir); ok {
		c.CacheDir = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Load loads configuration from the given YAML path.
//
// A missing file is created with the default config (0600) and that default
// is returned. An existing file is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether running on an unsaved default is fine.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calconv-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
