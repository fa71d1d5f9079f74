// Package config loads feedme's settings from a TOML or YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/identity"
)

const (
	BackendDir  = "dir"
	BackendBolt = "bolt"

	// DefaultDatabase is the bolt file name used when store.path is unset.
	DefaultDatabase = "feedme.db"

	EnvBaseURL = "FEEDME_BASE_URL"
	EnvWebroot = "FEEDME_WEBROOT"
	EnvConfig  = "FEEDME_CONFIG"
)

// SearchPath lists the files tried, in order, when no file is given.
var SearchPath = []string{
	"feedme.toml",
	"feedme.yaml",
	"~/.config/feedme.toml",
	"~/.config/feedme.yaml",
}

type Config struct {
	// BaseURL is the public URL the webroot is served under.
	BaseURL string `toml:"base_url" yaml:"base_url"`
	// Webroot is the local directory served at BaseURL.
	Webroot  string `toml:"webroot" yaml:"webroot"`
	Identity string `toml:"identity" yaml:"identity"`
	FFprobe  string `toml:"ffprobe" yaml:"ffprobe"`
	// Jobs bounds concurrent hashing, 0 means one per CPU.
	Jobs  int   `toml:"jobs" yaml:"jobs"`
	Store Store `toml:"store" yaml:"store"`
}

type Store struct {
	Backend string `toml:"backend" yaml:"backend"`
	// Path of the bolt database, relative paths are anchored at the media
	// directory.
	Path string `toml:"path" yaml:"path"`
}

func Default() Config {
	return Config{
		Identity: string(identity.Blake2b),
		FFprobe:  "ffprobe",
		Store:    Store{Backend: BackendDir},
	}
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Webroot, validation.Required, validation.By(absolute)),
		validation.Field(&c.Identity, validation.Required, validation.By(algorithm)),
		validation.Field(&c.FFprobe, validation.Required),
		validation.Field(&c.Jobs, validation.Min(0)),
		validation.Field(&c.Store),
	)
	if err != nil {
		return errs.Wrap(errs.Config, err, "invalid configuration")
	}
	return nil
}

func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In(BackendDir, BackendBolt)),
	)
}

// Algorithm is the identity algorithm selected by the configuration.
func (c *Config) Algorithm() identity.Algorithm {
	return identity.Algorithm(c.Identity)
}

// DatabasePath locates the bolt file for the given media directory.
func (c *Config) DatabasePath(mediaDir string) string {
	path := c.Store.Path
	if path == "" {
		path = DefaultDatabase
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(mediaDir, path)
}

// Load reads the file at path, or the first existing file of SearchPath
// when path is empty, applies environment overrides and validates the
// result. It returns the file actually read, "" when none was found.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, err := resolve(path)
	if err != nil {
		return nil, "", err
	}

	if resolved != "" {
		if err := decode(resolved, &cfg); err != nil {
			return nil, "", err
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolved, nil
}

func resolve(path string) (string, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return "", errs.Wrap(errs.Config, err, "cannot expand %s", path)
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", errs.Wrap(errs.Config, err, "cannot read config file %s", expanded)
		}
		return expanded, nil
	}

	for _, candidate := range SearchPath {
		expanded, err := homedir.Expand(candidate)
		if err != nil {
			continue
		}
		info, err := os.Stat(expanded)
		if err == nil && !info.IsDir() {
			return expanded, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", errs.Wrap(errs.Config, err, "cannot read config file %s", expanded)
		}
	}

	return "", nil
}

func decode(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.Config, err, "cannot read config file %s", path)
	}
	expanded := []byte(os.ExpandEnv(string(raw)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	default:
		dec := toml.NewDecoder(bytes.NewReader(expanded))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	}
	if err != nil {
		return errs.Wrap(errs.Config, err, "cannot parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvWebroot); ok {
		c.Webroot = v
	}
}

func (c *Config) normalize() error {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Identity = strings.ToLower(strings.TrimSpace(c.Identity))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))

	for _, p := range []*string{&c.Webroot, &c.Store.Path} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(strings.TrimSpace(*p))
		if err != nil {
			return errs.Wrap(errs.Config, err, "cannot expand %s", *p)
		}
		*p = expanded
	}
	return nil
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func algorithm(value interface{}) error {
	s, _ := value.(string)
	if _, err := identity.ParseAlgorithm(s); err != nil {
		return errors.New("must be one of blake2b, blake3")
	}
	return nil
}

func absolute(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !filepath.IsAbs(s) {
		return errors.New("must be an absolute path")
	}
	return nil
}
