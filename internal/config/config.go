// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
)

// Browser modes.
const (
	BrowserModeStatic = "static"
	BrowserModeDocker = "docker"
)

// Retry policies.
const (
	RetryPolicyConstant    = "constant"
	RetryPolicyExponential = "exponential"
)

// Config holds all application configuration. It is built once at startup
// and passed by pointer to every component; nothing mutates it afterwards.
type Config struct {
	DryRun         bool
	ScheduleHour   int
	ScheduleMinute int
	Location       *time.Location
	Tasks          []domain.TaskKind
	MaxItemsPerRun int

	DBPath        string
	SessionFile   string
	SessionMaxAge time.Duration

	Retry  RetryConfig
	Filter FilterConfig

	AgentAddr   string
	GitHubURL   string
	Credentials Credentials

	Browser BrowserConfig
	Notify  NotifyConfig

	Port       string
	APIEnabled bool
	CORSOrigin string

	LogLevel   slog.Level
	LogFile    string
	LogJournal bool
}

// RetryConfig controls the supervised task runner.
type RetryConfig struct {
	MaxRetries     int
	Delay          time.Duration
	Policy         string
	AttemptTimeout time.Duration
}

// BrowserConfig controls how the browsing context is provided.
type BrowserConfig struct {
	Mode         string
	Endpoint     string
	Image        string
	Port         int
	ProfileDir   string
	StopAfterRun bool
}

// NotifyConfig holds notification sink settings.
type NotifyConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	EmailSender      string
	EmailPassword    string
	EmailReceiver    string
	SMTPAddr         string
}

// TelegramEnabled reports whether every Telegram setting is present.
func (n NotifyConfig) TelegramEnabled() bool {
	return n.TelegramBotToken != "" && n.TelegramChatID != ""
}

// EmailEnabled reports whether every email setting is present.
func (n NotifyConfig) EmailEnabled() bool {
	return n.EmailSender != "" && n.EmailPassword != "" && n.EmailReceiver != ""
}

// LogValue keeps sink secrets out of logs.
func (n NotifyConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("telegram", n.TelegramEnabled()),
		slog.Bool("email", n.EmailEnabled()),
	)
}

// Credentials are the account credentials handed to the agent. They only
// ever appear inside a rendered instruction.
type Credentials struct {
	Username string
	Password string
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

// String implements fmt.Stringer.
func (c Credentials) String() string {
	return "[redacted]"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	loc := time.Local
	if tz := getEnv("TZ", ""); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &ValidationError{Field: "TZ", Reason: err.Error()}
		}
		loc = l
	}

	tasks, err := parseTasks(getEnv("PIPELINE_TASKS", "birthday-wish,reply"))
	if err != nil {
		return nil, &ValidationError{Field: "PIPELINE_TASKS", Reason: err.Error()}
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, &ValidationError{Field: "LOG_LEVEL", Reason: err.Error()}
	}

	filter, err := loadFilter(
		getEnv("WHITELIST", ""),
		getEnv("BLACKLIST", ""),
		getEnvInt("COOLDOWN_DAYS", 30),
		getEnv("CONTACTS_FILE", ""),
	)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DryRun:         getEnvBool("DRY_RUN", true),
		ScheduleHour:   getEnvInt("SCHEDULE_HOUR", 9),
		ScheduleMinute: getEnvInt("SCHEDULE_MINUTE", 0),
		Location:       loc,
		Tasks:          tasks,
		MaxItemsPerRun: getEnvInt("MAX_ITEMS_PER_RUN", 15),

		DBPath:        getEnv("DB_PATH", "./data/outreach.db"),
		SessionFile:   getEnv("SESSION_FILE", "./data/session.json"),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", domain.DefaultSessionMaxAge),

		Retry: RetryConfig{
			MaxRetries:     getEnvInt("MAX_RETRIES", 3),
			Delay:          getEnvDuration("RETRY_DELAY", 5*time.Second),
			Policy:         strings.ToLower(getEnv("RETRY_POLICY", RetryPolicyConstant)),
			AttemptTimeout: getEnvDuration("ATTEMPT_TIMEOUT", 15*time.Minute),
		},
		Filter: filter,

		AgentAddr: getEnv("AGENT_ADDR", "localhost:50051"),
		GitHubURL: getEnv("GITHUB_URL", ""),
		Credentials: Credentials{
			Username: getEnv("LINKEDIN_USERNAME", ""),
			Password: getEnv("LINKEDIN_PASSWORD", ""),
		},

		Browser: BrowserConfig{
			Mode:         strings.ToLower(getEnv("BROWSER_MODE", BrowserModeStatic)),
			Endpoint:     getEnv("BROWSER_ENDPOINT", ""),
			Image:        getEnv("BROWSER_IMAGE", "chromedp/headless-shell:latest"),
			Port:         getEnvInt("BROWSER_PORT", 9222),
			ProfileDir:   getEnv("BROWSER_PROFILE_DIR", "/data/profile"),
			StopAfterRun: getEnvBool("BROWSER_STOP_AFTER_RUN", true),
		},
		Notify: NotifyConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			EmailSender:      getEnv("EMAIL_SENDER", ""),
			EmailPassword:    getEnv("EMAIL_PASSWORD", ""),
			EmailReceiver:    getEnv("EMAIL_RECEIVER", ""),
			SMTPAddr:         getEnv("SMTP_ADDR", "smtp.gmail.com:465"),
		},

		Port:       getEnv("PORT", "8080"),
		APIEnabled: getEnvBool("API_ENABLED", true),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		LogLevel:   level,
		LogFile:    getEnv("LOG_FILE", "./data/agent.log"),
		LogJournal: getEnvBool("LOG_JOURNAL", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		return &ValidationError{Field: "SCHEDULE_HOUR", Reason: "must be between 0 and 23"}
	}
	if c.ScheduleMinute < 0 || c.ScheduleMinute > 59 {
		return &ValidationError{Field: "SCHEDULE_MINUTE", Reason: "must be between 0 and 59"}
	}
	if len(c.Tasks) == 0 {
		return &ValidationError{Field: "PIPELINE_TASKS", Reason: "at least one task is required"}
	}
	if c.MaxItemsPerRun <= 0 {
		return &ValidationError{Field: "MAX_ITEMS_PER_RUN", Reason: "must be > 0"}
	}
	if c.DBPath == "" {
		return &ValidationError{Field: "DB_PATH", Reason: "cannot be empty"}
	}
	if c.SessionFile == "" {
		return &ValidationError{Field: "SESSION_FILE", Reason: "cannot be empty"}
	}
	if c.SessionMaxAge <= 0 {
		return &ValidationError{Field: "SESSION_MAX_AGE", Reason: "must be > 0"}
	}
	if c.Retry.MaxRetries <= 0 {
		return &ValidationError{Field: "MAX_RETRIES", Reason: "must be > 0"}
	}
	if c.Retry.Delay < 0 {
		return &ValidationError{Field: "RETRY_DELAY", Reason: "cannot be negative"}
	}
	if c.Retry.Policy != RetryPolicyConstant && c.Retry.Policy != RetryPolicyExponential {
		return &ValidationError{Field: "RETRY_POLICY", Reason: fmt.Sprintf("unknown policy %q", c.Retry.Policy)}
	}
	if c.Filter.CooldownDays < 0 {
		return &ValidationError{Field: "COOLDOWN_DAYS", Reason: "cannot be negative"}
	}
	if c.AgentAddr == "" {
		return &ValidationError{Field: "AGENT_ADDR", Reason: "cannot be empty"}
	}
	switch c.Browser.Mode {
	case BrowserModeStatic:
	case BrowserModeDocker:
		if c.Browser.Image == "" {
			return &ValidationError{Field: "BROWSER_IMAGE", Reason: "required in docker mode"}
		}
	default:
		return &ValidationError{Field: "BROWSER_MODE", Reason: fmt.Sprintf("unknown mode %q", c.Browser.Mode)}
	}

	for _, task := range c.Tasks {
		if task.RequiresLogin() {
			if c.Credentials.Username == "" {
				return &ValidationError{Field: "LINKEDIN_USERNAME", Reason: "required by task " + string(task), err: ErrMissingCredential}
			}
			if c.Credentials.Password == "" {
				return &ValidationError{Field: "LINKEDIN_PASSWORD", Reason: "required by task " + string(task), err: ErrMissingCredential}
			}
		}
		if task == domain.TaskFollowerCheck && c.GitHubURL == "" {
			return &ValidationError{Field: "GITHUB_URL", Reason: "required by task " + string(task)}
		}
	}
	return nil
}

// ScheduleLabel renders the daily run time as HH:MM.
func (c *Config) ScheduleLabel() string {
	return fmt.Sprintf("%02d:%02d", c.ScheduleHour, c.ScheduleMinute)
}

func parseTasks(raw string) ([]domain.TaskKind, error) {
	var tasks []domain.TaskKind
	seen := make(map[domain.TaskKind]bool)
	for _, part := range splitList(raw) {
		kind, err := domain.ParseTaskKind(part)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		tasks = append(tasks, kind)
	}
	return tasks, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("90s", "12h") or a bare
// number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
