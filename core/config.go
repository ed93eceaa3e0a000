package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/trezcool/kikundi/core/feedback"
)

type (
	Config struct {
		Env          string
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		LogLevel     string

		FrontendBaseURL      string
		PasswordResetTimeout time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Policy   feedback.Policy
		LLM      LLMConfig
		LMS      LMSConfig
		Email    EmailConfig
		Jobs     JobsConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugPort                 int
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		RateLimit                 float64 // requests per second per client, 0 disables
	}

	DatabaseConfig struct {
		Engine        string // postgres | pgx | sqlite
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		Path          string // sqlite file, ":memory:" for tests
	}

	RedisConfig struct {
		Enabled   bool
		Addr      string
		Password  string
		DB        int
		ReportTTL time.Duration
	}

	LLMConfig struct {
		Provider      string // mock | ollama | openai | gemini
		Model         string
		OllamaBaseURL string
		OpenAIBaseURL string
		OpenAIAPIKey  string
		GeminiAPIKey  string
		Timeout       time.Duration
	}

	LMSConfig struct {
		Provider   string // canvas, empty disables sync
		BaseURL    string
		APIKey     string
		SyncSpec   string
		Instructor string // username or email owning synced courses
	}

	EmailConfig struct {
		SendgridAPIKey   string
		DefaultFromEmail string
	}

	JobsConfig struct {
		Enabled    bool
		DigestSpec string
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ServerConfig) DebugAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.DebugPort))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) IsSQLite() bool {
	return c.Engine == "sqlite"
}

// NewConfig reads the configuration of the current environment (ENV: DEV, TEST, QA, PROD).
// Values come from `<ENV>_`-prefixed environment variables, optionally loaded from `config/.env.<env>`.
func NewConfig() (*Config, error) {
	conf := viper.New()
	setDefaults(conf)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("database.engine", "sqlite")
		conf.SetDefault("database.path", ":memory:")
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}
	dotEnvPath := filepath.Join(configDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	conf.AutomaticEnv()

	c := &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		AppName:      conf.GetString("appName"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		LogLevel:     conf.GetString("logLevel"),

		FrontendBaseURL:      conf.GetString("frontendBaseURL"),
		PasswordResetTimeout: conf.GetDuration("passwordResetTimeout"),

		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Port:                      conf.GetInt("server.port"),
			DebugPort:                 conf.GetInt("server.debugPort"),
			ReadTimeout:               conf.GetDuration("server.readTimeout"),
			WriteTimeout:              conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSOrigins:               conf.GetStringSlice("server.corsOrigins"),
			RateLimit:                 conf.GetFloat64("server.rateLimit"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			Name:          conf.GetString("database.name"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			Path:          conf.GetString("database.path"),
		},
		Redis: RedisConfig{
			Enabled:   conf.GetBool("redis.enabled"),
			Addr:      conf.GetString("redis.addr"),
			Password:  conf.GetString("redis.password"),
			DB:        conf.GetInt("redis.db"),
			ReportTTL: conf.GetDuration("redis.reportTTL"),
		},
		Policy: feedback.Policy{
			InactivityDays:      conf.GetInt("policy.inactivityDays"),
			WorkloadRatio:       conf.GetFloat64("policy.workloadRatio"),
			ConcentrationShare:  conf.GetFloat64("policy.concentrationShare"),
			PositiveHours:       conf.GetFloat64("policy.positiveHours"),
			EscalationCount:     conf.GetInt("policy.escalationCount"),
			OverloadedHours:     conf.GetFloat64("policy.overloadedHours"),
			UnderutilizedHours:  conf.GetFloat64("policy.underutilizedHours"),
			ParticipationTarget: conf.GetFloat64("policy.participationTarget"),
			DueSoonWindow:       conf.GetDuration("policy.dueSoonWindow"),
		},
		LLM: LLMConfig{
			Provider:      conf.GetString("llm.provider"),
			Model:         conf.GetString("llm.model"),
			OllamaBaseURL: conf.GetString("llm.ollamaBaseURL"),
			OpenAIBaseURL: conf.GetString("llm.openaiBaseURL"),
			OpenAIAPIKey:  conf.GetString("llm.openaiAPIKey"),
			GeminiAPIKey:  conf.GetString("llm.geminiAPIKey"),
			Timeout:       conf.GetDuration("llm.timeout"),
		},
		LMS: LMSConfig{
			Provider:   conf.GetString("lms.provider"),
			BaseURL:    conf.GetString("lms.baseURL"),
			APIKey:     conf.GetString("lms.apiKey"),
			SyncSpec:   conf.GetString("lms.syncSpec"),
			Instructor: conf.GetString("lms.instructor"),
		},
		Email: EmailConfig{
			SendgridAPIKey:   conf.GetString("email.sendgridAPIKey"),
			DefaultFromEmail: conf.GetString("email.defaultFromEmail"),
		},
		Jobs: JobsConfig{
			Enabled:    conf.GetBool("jobs.enabled"),
			DigestSpec: conf.GetString("jobs.digestSpec"),
		},
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustConfig is NewConfig for main packages and tests.
func MustConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func setDefaults(conf *viper.Viper) {
	conf.SetTypeByDefaultValue(true)

	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Kikundi")
	conf.SetDefault("debug", false)
	conf.SetDefault("testMode", false)
	conf.SetDefault("secretKey", "k1kund1-dev-$ecret-(change-me)-q8z@w3r4t5y6u7")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("logLevel", "info")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("passwordResetTimeout", 72*time.Hour)

	conf.SetDefault("server.host", "")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.debugPort", 4000)
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.corsOrigins", []string{"http://localhost:3000"})
	conf.SetDefault("server.rateLimit", 20.0)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.user", "kikundi")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.name", "kikundi")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.path", "kikundi.db")

	conf.SetDefault("redis.enabled", false)
	conf.SetDefault("redis.addr", "localhost:6379")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)
	conf.SetDefault("redis.reportTTL", 5*time.Minute)

	p := feedback.DefaultPolicy()
	conf.SetDefault("policy.inactivityDays", p.InactivityDays)
	conf.SetDefault("policy.workloadRatio", p.WorkloadRatio)
	conf.SetDefault("policy.concentrationShare", p.ConcentrationShare)
	conf.SetDefault("policy.positiveHours", p.PositiveHours)
	conf.SetDefault("policy.escalationCount", p.EscalationCount)
	conf.SetDefault("policy.overloadedHours", p.OverloadedHours)
	conf.SetDefault("policy.underutilizedHours", p.UnderutilizedHours)
	conf.SetDefault("policy.participationTarget", p.ParticipationTarget)
	conf.SetDefault("policy.dueSoonWindow", p.DueSoonWindow)

	conf.SetDefault("llm.provider", "mock")
	conf.SetDefault("llm.model", "llama3.2")
	conf.SetDefault("llm.ollamaBaseURL", "http://localhost:11434")
	conf.SetDefault("llm.openaiBaseURL", "https://api.openai.com/v1")
	conf.SetDefault("llm.openaiAPIKey", "")
	conf.SetDefault("llm.geminiAPIKey", "")
	conf.SetDefault("llm.timeout", 30*time.Second)

	conf.SetDefault("lms.provider", "")
	conf.SetDefault("lms.baseURL", "")
	conf.SetDefault("lms.apiKey", "")
	conf.SetDefault("lms.syncSpec", "@every 5m")
	conf.SetDefault("lms.instructor", "")

	conf.SetDefault("email.sendgridAPIKey", "")
	conf.SetDefault("email.defaultFromEmail", "noreply@localhost")

	conf.SetDefault("jobs.enabled", true)
	conf.SetDefault("jobs.digestSpec", "0 7 * * *")
}

func (c *Config) validate() error {
	switch c.Database.Engine {
	case "postgres", "pgx", "sqlite":
	default:
		return errors.Errorf("config: unsupported database engine %q", c.Database.Engine)
	}
	switch c.LLM.Provider {
	case "mock", "ollama", "openai", "gemini":
	default:
		return errors.Errorf("config: unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.LMS.Provider {
	case "", "canvas":
	default:
		return errors.Errorf("config: unsupported lms provider %q", c.LMS.Provider)
	}
	validate, _ := NewValidation()
	if err := validate.Struct(c.Policy); err != nil {
		return errors.Wrap(err, "config: invalid policy")
	}
	if !c.Debug && !c.TestMode && c.Env == "PROD" && strings.HasPrefix(c.SecretKey, "k1kund1-dev-") {
		return fmt.Errorf("config: %s_SECRETKEY must be set in production", c.Env)
	}
	return nil
}
