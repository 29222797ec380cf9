package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf holds the app-wide configuration. It is loaded once at startup.
var Conf *Config

type (
	ServerConfig struct {
		Host            string
		Port            int
		BaseURL         string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine     string
		Name       string
		User       string
		Password   string
		Host       string
		Port       int
		DisableTLS bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	SessionConfig struct {
		CookieName      string
		Timeout         time.Duration // inactivity expiry, re-armed on every request
		RememberTimeout time.Duration // "remember me" max-age
	}

	LoginConfig struct {
		MaxAttempts  int
		LockDuration time.Duration
		EmailDomain  string // institutional address allow-list
	}

	Config struct {
		Env      string // DEV (default), TEST, QA, PROD
		AppName  string
		Debug    bool
		TestMode bool

		SecretKey            string
		DefaultFromEmail     string
		SendgridApiKey       string
		RollbarToken         string
		PasswordResetTimeout time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Session  SessionConfig
		Login    LoginConfig
	}
)

func (c *Config) IsProd() bool { return c.Env == "PROD" }

func (c *Config) FromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}

func (dc DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port)
}

func init() {
	Conf = loadConfig()
}

func loadConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Lectura")
	v.SetDefault("secretKey", "x91m=7y&#(2qb!u0d$ke5t^)pz+hw_4ns8vj*cfr@g6la3oi%e")
	v.SetDefault("defaultFromEmail", "no-reply@lectura.localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeout", time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.baseURL", "http://localhost:8000")
	v.SetDefault("server.shutdownTimeout", 20*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "lectura")
	v.SetDefault("database.user", "lectura")
	v.SetDefault("database.password", "lectura")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.cookieName", "lectura_sid")
	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("session.rememberTimeout", 4*time.Hour)

	v.SetDefault("login.maxAttempts", 5)
	v.SetDefault("login.lockDuration", 15*time.Minute)
	v.SetDefault("login.emailDomain", "ucvvirtual.edu.pe")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Env:      env,
		AppName:  v.GetString("appName"),
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",

		SecretKey:            v.GetString("secretKey"),
		DefaultFromEmail:     v.GetString("defaultFromEmail"),
		SendgridApiKey:       v.GetString("sendgridApiKey"),
		RollbarToken:         v.GetString("rollbarToken"),
		PasswordResetTimeout: v.GetDuration("passwordResetTimeout"),

		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			BaseURL:         v.GetString("server.baseURL"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			CookieName:      v.GetString("session.cookieName"),
			Timeout:         v.GetDuration("session.timeout"),
			RememberTimeout: v.GetDuration("session.rememberTimeout"),
		},
		Login: LoginConfig{
			MaxAttempts:  v.GetInt("login.maxAttempts"),
			LockDuration: v.GetDuration("login.lockDuration"),
			EmailDomain:  v.GetString("login.emailDomain"),
		},
	}
}
