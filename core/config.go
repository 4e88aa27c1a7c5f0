package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var (
	errMissingSecretKey   = errors.New("config: secretKey is required")
	errMissingAdminSecret = errors.New("config: adminSecret is required")
)

type (
	Config struct {
		Env                string
		Build              string
		Debug              bool
		TestMode           bool
		AppName            string
		SecretKey          string
		AdminSecret        string
		JWTExpirationDelta time.Duration
		RollbarToken       string
		SendgridApiKey     string
		DefaultFromEmail   mail.Address
		ResetNotifyTo      []mail.Address
		LockedTerms        []int
		RosterFile         string
		Roster             []RosterEntry

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}

	// RosterEntry is one row of the pre-registration table used to seed accounts on first login.
	RosterEntry struct {
		Username string   `mapstructure:"username"`
		Guess    float64  `mapstructure:"guess"`
		Actual   *float64 `mapstructure:"actual"`
		IsAdmin  bool     `mapstructure:"isAdmin"`
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

// NewConfig loads the configuration from the environment (and `config/.env.<env>` if it exists).
// The roster is read from RosterFile.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "CGPA Board")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("resetNotifyTo", []string{})
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("lockedTerms", []int{4})
	v.SetDefault("rosterFile", filepath.Join("config", "roster.yaml"))
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "cgpaboard")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("secretKey", "")
	v.SetDefault("adminSecret", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	root := Getwd()
	dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:                env,
		Build:              v.GetString("build"),
		Debug:              v.GetBool("debug"),
		TestMode:           v.GetBool("testMode"),
		AppName:            v.GetString("appName"),
		SecretKey:          v.GetString("secretKey"),
		AdminSecret:        v.GetString("adminSecret"),
		JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		RollbarToken:       v.GetString("rollbarToken"),
		SendgridApiKey:     v.GetString("sendgridApiKey"),
		DefaultFromEmail:   mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		LockedTerms:        v.GetIntSlice("lockedTerms"),
		RosterFile:         v.GetString("rosterFile"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
	}

	for _, addr := range v.GetStringSlice("resetNotifyTo") {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing resetNotifyTo %q", addr)
		}
		conf.ResetNotifyTo = append(conf.ResetNotifyTo, *parsed)
	}

	rosterPath := conf.RosterFile
	if !filepath.IsAbs(rosterPath) {
		rosterPath = filepath.Join(root, rosterPath)
	}
	roster, err := LoadRoster(rosterPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading roster")
	}
	conf.Roster = roster

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the settings the application cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errMissingSecretKey
	}
	if strings.TrimSpace(c.AdminSecret) == "" {
		return errMissingAdminSecret
	}
	for _, term := range c.LockedTerms {
		if term != 4 && term != 5 {
			return fmt.Errorf("config: unknown locked term %d", term)
		}
	}
	return nil
}

// LoadRoster reads the `roster` list of a YAML file.
// A missing file yields an empty roster: every first login then gets a default account.
func LoadRoster(path string) ([]RosterEntry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var entries []RosterEntry
	if err := v.UnmarshalKey("roster", &entries); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return entries, nil
}
