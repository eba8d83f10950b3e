package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"microblog/cache"
	"microblog/database"
	"microblog/storage"
)

// configFile is looked up in the working directory.
const configFile = ".config.json"

type Config struct {
	Port     int             `json:"port"`
	Env      string          `json:"env"`
	Pepper   string          `json:"pepper"`
	HMACKey  string          `json:"hmac_key"`
	CSRFKey  string          `json:"csrf_key"`
	Database database.Config `json:"database"`
	Cache    CacheConfig     `json:"cache"`
	Media    MediaConfig     `json:"media"`
}

// CacheConfig picks the page cache. Backend is "memory", "redis" or "none".
type CacheConfig struct {
	Backend string            `json:"backend"`
	TTL     int               `json:"ttl_seconds"`
	Redis   cache.RedisConfig `json:"redis"`
}

// MediaConfig picks where uploaded images go. Backend is "local" or "s3".
type MediaConfig struct {
	Backend   string           `json:"backend"`
	Root      string           `json:"root"`
	URLPrefix string           `json:"url_prefix"`
	S3        storage.S3Config `json:"s3"`
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func DefaultConfig() Config {
	return Config{
		Port:     8000,
		Env:      "dev",
		Pepper:   "secret-random-string",
		HMACKey:  "secret-hmac-key",
		Database: database.DefaultConfig(),
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     int(cache.DefaultTTL.Seconds()),
		},
		Media: MediaConfig{
			Backend:   "local",
			Root:      "media",
			URLPrefix: "/media/",
		},
	}
}

// LoadConfig builds the configuration from the defaults, the .config.json file and
// the environment, each overriding the one before. Without a config file the dev
// defaults are used, unless required is set, which production does.
func LoadConfig(dir string, required bool) (Config, error) {
	c := DefaultConfig()

	f, err := os.Open(filepath.Join(dir, configFile))
	switch {
	case err == nil:
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			return c, errors.Wrapf(err, "decode %s", configFile)
		}
	case os.IsNotExist(err) && !required:
	case os.IsNotExist(err):
		return c, errors.Errorf("%s is required in production", configFile)
	default:
		return c, errors.Wrapf(err, "open %s", configFile)
	}

	if env := os.Getenv("MICROBLOG_ENV"); env != "" {
		c.Env = env
	}
	loadDotenv(dir, c.Env)
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, nil
}

// loadDotenv loads the .env files of env, most specific first. Variables that are
// already set are never overridden.
func loadDotenv(dir, env string) {
	for _, name := range []string{".env." + env + ".local", ".env.local", ".env." + env, ".env"} {
		// Missing files are fine.
		_ = godotenv.Load(filepath.Join(dir, name))
	}
}

// applyEnv overrides settings with the environment variables that are set.
func (c *Config) applyEnv() error {
	str := map[string]*string{
		"MICROBLOG_ENV": &c.Env,
		"PEPPER":        &c.Pepper,
		"HMAC_KEY":      &c.HMACKey,
		"CSRF_KEY":      &c.CSRFKey,
		"DB_DIALECT":    &c.Database.Dialect,
		"DB_HOST":       &c.Database.Host,
		"DB_USER":       &c.Database.User,
		"DB_PASSWORD":   &c.Database.Password,
		"DB_NAME":       &c.Database.Name,
		"DB_PATH":       &c.Database.Path,
		"CACHE_BACKEND": &c.Cache.Backend,
		"REDIS_ADDR":    &c.Cache.Redis.Addr,
		"REDIS_PASSWD":  &c.Cache.Redis.Password,
		"MEDIA_BACKEND": &c.Media.Backend,
		"MEDIA_ROOT":    &c.Media.Root,
		"MEDIA_URL":     &c.Media.URLPrefix,
		"S3_BUCKET":     &c.Media.S3.Bucket,
		"AWS_REGION":    &c.Media.S3.Region,
		"S3_URL_PREFIX": &c.Media.S3.URLPrefix,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":              &c.Port,
		"DB_PORT":           &c.Database.Port,
		"CACHE_TTL_SECONDS": &c.Cache.TTL,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", key)
		}
		*dst = n
	}
	return nil
}
