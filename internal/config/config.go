// Package config loads daemon configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// GoogleConfig configures the LLM client's two authentication modes.
type GoogleConfig struct {
	APIKey                string // plain API-key auth against the public endpoint
	ServiceAccountJSONPath string // path to a GCP service-account JSON credentials file
	Model                  string
}

// SlackConfig configures the Slack source client.
type SlackConfig struct {
	ClientID     string
	ClientSecret string
	OAuthPort    int
}

// AtlassianConfig configures the Jira/Confluence source client.
type AtlassianConfig struct {
	ClientID     string
	ClientSecret string
	OAuthPort    int
}

// ObsConfig controls OpenTelemetry export.
type ObsConfig struct {
	Enabled        bool
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// SchedulerConfig controls the background sync loop.
type SchedulerConfig struct {
	IntervalMinutes  int
	MaxQueueRetries  int
}

type Config struct {
	DataDir   string // application data directory; holds the sqlite file
	DBFile    string // filename within DataDir, defaults to "daybook.db"
	LogPath   string
	LogLevel  string

	Google     GoogleConfig
	Slack      SlackConfig
	Atlassian  AtlassianConfig
	Obs        ObsConfig
	Scheduler  SchedulerConfig
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.DataDir = firstNonEmpty(strings.TrimSpace(os.Getenv("DAYBOOK_DATA_DIR")), defaultDataDir())
	cfg.DBFile = firstNonEmpty(strings.TrimSpace(os.Getenv("DAYBOOK_DB_FILE")), "daybook.db")
	cfg.LogPath = strings.TrimSpace(os.Getenv("DAYBOOK_LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")

	cfg.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_GEMINI_API_KEY"))
	cfg.Google.ServiceAccountJSONPath = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	cfg.Google.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_GEMINI_MODEL")), "gemini-3-pro-preview")

	cfg.Slack.ClientID = strings.TrimSpace(os.Getenv("SLACK_CLIENT_ID"))
	cfg.Slack.ClientSecret = strings.TrimSpace(os.Getenv("SLACK_CLIENT_SECRET"))
	cfg.Slack.OAuthPort = intFromEnv("SLACK_OAUTH_PORT", 42813)

	cfg.Atlassian.ClientID = strings.TrimSpace(os.Getenv("ATLASSIAN_CLIENT_ID"))
	cfg.Atlassian.ClientSecret = strings.TrimSpace(os.Getenv("ATLASSIAN_CLIENT_SECRET"))
	cfg.Atlassian.OAuthPort = intFromEnv("ATLASSIAN_OAUTH_PORT", 42814)

	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.Enabled = cfg.Obs.OTLP != ""
	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "daybook")
	cfg.Obs.ServiceVersion = firstNonEmpty(strings.TrimSpace(os.Getenv("DAYBOOK_VERSION")), "dev")
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("DAYBOOK_ENV")), "development")

	cfg.Scheduler.IntervalMinutes = intFromEnv("DAYBOOK_SYNC_INTERVAL_MINUTES", 15)
	cfg.Scheduler.MaxQueueRetries = intFromEnv("DAYBOOK_QUEUE_MAX_RETRIES", 3)

	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".daybook"
	}
	return home + string(os.PathSeparator) + ".daybook"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
