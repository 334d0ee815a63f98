package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const Name = "birdbridge"
const ConfigFileName = "config.yaml"
const Repository = "https://github.com/deemkeen/birdbridge"

//go:embed config_default.yaml
var embeddedConfig []byte

type SourceApiConf struct {
	BaseUrl        string `yaml:"baseUrl"`
	BearerToken    string `yaml:"bearerToken"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type ModerationConf struct {
	FollowerMode string   `yaml:"followerMode"`
	Followers    []string `yaml:"followers"`
	AccountMode  string   `yaml:"accountMode"`
	Accounts     []string `yaml:"accounts"`
}

// RateLimitConf sets per-IP request budgets. The inbox budget applies on
// top of the global one.
type RateLimitConf struct {
	RequestsPerSecond      float64 `yaml:"requestsPerSecond"`
	Burst                  int     `yaml:"burst"`
	InboxRequestsPerSecond float64 `yaml:"inboxRequestsPerSecond"`
	InboxBurst             int     `yaml:"inboxBurst"`
	MaxInboxBodyBytes      int64   `yaml:"maxInboxBodyBytes"`
}

type AppConfig struct {
	Conf struct {
		Host            string
		HttpPort        int            `yaml:"httpPort"`
		SslDomain       string         `yaml:"sslDomain"`
		SourceDomain    string         `yaml:"sourceDomain"`
		AdminEmail      string         `yaml:"adminEmail"`
		LogLevel        string         `yaml:"logLevel"`
		DbPath          string         `yaml:"dbPath"`
		KeyPath         string         `yaml:"keyPath"`
		RedisUrl        string         `yaml:"redisUrl"`
		CacheTtlMinutes int            `yaml:"cacheTtlMinutes"`
		Metrics         bool           `yaml:"metrics"`
		SourceApi       SourceApiConf  `yaml:"sourceApi"`
		Moderation      ModerationConf `yaml:"moderation"`
		RateLimit       RateLimitConf  `yaml:"rateLimit"`
	}
}

// ReadConf loads the configuration. An empty path resolves config.yaml the
// same way as every other data file. Values from .env files and BIRDBRIDGE_*
// environment variables override the file.
func ReadConf(path string, log logrus.FieldLogger) (*AppConfig, error) {
	c := &AppConfig{}

	loadEnvFiles(log)

	configPath := path
	if configPath == "" {
		configPath = ResolveFilePath(ConfigFileName)
	}

	buf, err := os.ReadFile(configPath)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Infof("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warnf("Could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c, log)
	applyDefaults(c)

	return c, nil
}

func loadEnvFiles(log logrus.FieldLogger) {
	for _, file := range []string{".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.WithError(err).Warnf("Failed to load %s", file)
			continue
		}
		log.Debugf("Loaded env file %s", file)
	}
}

func applyEnvOverrides(c *AppConfig, log logrus.FieldLogger) {
	envInt := func(key string, target *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			log.Warnf("Ignoring %s: %v", key, err)
			return
		}
		*target = parsed
	}
	envFloat := func(key string, target *float64) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warnf("Ignoring %s: %v", key, err)
			return
		}
		*target = parsed
	}
	envString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	envList := func(key string, target *[]string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*target = out
	}

	envString("BIRDBRIDGE_HOST", &c.Conf.Host)
	envInt("BIRDBRIDGE_HTTPPORT", &c.Conf.HttpPort)
	envString("BIRDBRIDGE_SSLDOMAIN", &c.Conf.SslDomain)
	envString("BIRDBRIDGE_SOURCEDOMAIN", &c.Conf.SourceDomain)
	envString("BIRDBRIDGE_ADMINEMAIL", &c.Conf.AdminEmail)
	envString("BIRDBRIDGE_LOGLEVEL", &c.Conf.LogLevel)
	envString("BIRDBRIDGE_DBPATH", &c.Conf.DbPath)
	envString("BIRDBRIDGE_KEYPATH", &c.Conf.KeyPath)
	envString("BIRDBRIDGE_REDISURL", &c.Conf.RedisUrl)
	envInt("BIRDBRIDGE_CACHETTLMINUTES", &c.Conf.CacheTtlMinutes)
	envString("BIRDBRIDGE_SOURCEAPI_BASEURL", &c.Conf.SourceApi.BaseUrl)
	envString("BIRDBRIDGE_SOURCEAPI_BEARERTOKEN", &c.Conf.SourceApi.BearerToken)
	envInt("BIRDBRIDGE_SOURCEAPI_TIMEOUTSECONDS", &c.Conf.SourceApi.TimeoutSeconds)
	envString("BIRDBRIDGE_MODERATION_FOLLOWERMODE", &c.Conf.Moderation.FollowerMode)
	envList("BIRDBRIDGE_MODERATION_FOLLOWERS", &c.Conf.Moderation.Followers)
	envString("BIRDBRIDGE_MODERATION_ACCOUNTMODE", &c.Conf.Moderation.AccountMode)
	envList("BIRDBRIDGE_MODERATION_ACCOUNTS", &c.Conf.Moderation.Accounts)
	envFloat("BIRDBRIDGE_RATELIMIT_REQUESTSPERSECOND", &c.Conf.RateLimit.RequestsPerSecond)
	envInt("BIRDBRIDGE_RATELIMIT_BURST", &c.Conf.RateLimit.Burst)
	envFloat("BIRDBRIDGE_RATELIMIT_INBOXREQUESTSPERSECOND", &c.Conf.RateLimit.InboxRequestsPerSecond)
	envInt("BIRDBRIDGE_RATELIMIT_INBOXBURST", &c.Conf.RateLimit.InboxBurst)

	if os.Getenv("BIRDBRIDGE_METRICS") == "true" {
		c.Conf.Metrics = true
	}
}

func applyDefaults(c *AppConfig) {
	if c.Conf.HttpPort == 0 {
		c.Conf.HttpPort = 9999
	}
	if c.Conf.SourceDomain == "" {
		c.Conf.SourceDomain = "twitter.com"
	}
	if c.Conf.DbPath == "" {
		c.Conf.DbPath = "database.db"
	}
	if c.Conf.KeyPath == "" {
		c.Conf.KeyPath = "instance_key.pem"
	}
	if c.Conf.CacheTtlMinutes <= 0 {
		c.Conf.CacheTtlMinutes = 15
	}
	if c.Conf.SourceApi.TimeoutSeconds <= 0 {
		c.Conf.SourceApi.TimeoutSeconds = 10
	}
	c.Conf.RateLimit = c.Conf.RateLimit.WithDefaults()
}

// WithDefaults fills unset budgets: 10/s burst 20 overall, 5/s burst 10
// and 1MB bodies for the inbox.
func (r RateLimitConf) WithDefaults() RateLimitConf {
	if r.RequestsPerSecond <= 0 {
		r.RequestsPerSecond = 10
	}
	if r.Burst <= 0 {
		r.Burst = 20
	}
	if r.InboxRequestsPerSecond <= 0 {
		r.InboxRequestsPerSecond = 5
	}
	if r.InboxBurst <= 0 {
		r.InboxBurst = 10
	}
	if r.MaxInboxBodyBytes <= 0 {
		r.MaxInboxBodyBytes = 1 << 20
	}
	return r
}
