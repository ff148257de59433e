package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	// LedgerDriverMongo streams the ledger from MongoDB change streams
	LedgerDriverMongo = "mongo"
	// LedgerDriverMemory keeps the ledger in process (demo and tests)
	LedgerDriverMemory = "memory"
)

// EnvFiles are loaded, in order, before reading the environment. Missing files are ignored.
var EnvFiles = []string{".env.local", ".env"}

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"marigold-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"0"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Ledger driver (mongo or memory)
	LedgerDriver string `env:"LEDGER_DRIVER" env-default:"mongo"`
	// Ledger connection URI
	LedgerURI string `env:"LEDGER_URI" env-default:""`
	// Ledger API key, used as the connection password
	LedgerAPIKey string `env:"LEDGER_API_KEY" env-default:""`
	// Ledger user name paired with the API key
	LedgerUserName string `env:"LEDGER_USER_NAME" env-default:"marigold"`
	// Ledger project id, used as the database name
	LedgerProjectID string `env:"LEDGER_PROJECT_ID" env-default:""`
	// Students collection name
	LedgerStudentsCollection string `env:"LEDGER_STUDENTS_COLLECTION" env-default:"students"`
	// Payments collection name
	LedgerPaymentsCollection string `env:"LEDGER_PAYMENTS_COLLECTION" env-default:"payments"`
	// YAML fixture loaded into the memory ledger at startup
	LedgerSeedFile string `env:"LEDGER_SEED_FILE" env-default:""`
	// Ledger connect timeout
	LedgerConnectTimeout time.Duration `env:"LEDGER_CONNECT_TIMEOUT" env-default:"10s"`

	// Time zone used for calendar-day comparisons
	TimeZone string `env:"TIMEZONE" env-default:"UTC"`
	// ISO 4217 currency code for display labels
	Currency string `env:"CURRENCY" env-default:"EGP"`
	// BCP 47 locale for display labels
	Locale string `env:"LOCALE" env-default:"ar-EG"`
	// How often the dashboard checks for a calendar-day change
	ReferenceClockInterval time.Duration `env:"REFERENCE_CLOCK_INTERVAL" env-default:"1m"`

	// Assistant (OpenAI-compatible chat completions) base URL
	AssistantBaseURL string `env:"ASSISTANT_BASE_URL" env-default:"https://api.openai.com/v1"`
	// Assistant API key; the assistants are disabled when empty
	AssistantAPIKey string `env:"ASSISTANT_API_KEY" env-default:""`
	// Assistant model name
	AssistantModel string `env:"ASSISTANT_MODEL" env-default:"gpt-4o-mini"`
	// Assistant request timeout
	AssistantTimeout time.Duration `env:"ASSISTANT_TIMEOUT" env-default:"30s"`
	// How long an in-flight assistant request holds its guard
	AssistantInFlightTTL time.Duration `env:"ASSISTANT_IN_FLIGHT_TTL" env-default:"2m"`

	// Enable the Redis-backed in-flight guard (shared across replicas)
	RedisEnabled bool `env:"REDIS_ENABLED" env-default:"false"`
	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Redis key prefix for in-flight locks
	RedisLockPrefix string `env:"REDIS_LOCK_PREFIX" env-default:"marigold:inflight:"`

	// Enable publishing dashboard updates to Kafka
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for dashboard updates
	KafkaDashboardTopic string `env:"KAFKA_DASHBOARD_TOPIC" env-default:"dashboard-updates"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads .env files (when present) and the process environment.
func Load() (Config, error) {
	for _, file := range EnvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// LedgerVariables lists the variables an operator sets to connect the ledger.
func LedgerVariables() []string {
	return []string{"LEDGER_URI", "LEDGER_API_KEY", "LEDGER_PROJECT_ID"}
}

// MissingLedgerSettings returns the required ledger variables that are unset.
// The memory driver needs none.
func (c Config) MissingLedgerSettings() []string {
	if c.LedgerDriver == LedgerDriverMemory {
		return nil
	}

	values := map[string]string{
		"LEDGER_URI":        c.LedgerURI,
		"LEDGER_API_KEY":    c.LedgerAPIKey,
		"LEDGER_PROJECT_ID": c.LedgerProjectID,
	}

	var missing []string
	for _, name := range LedgerVariables() {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// LedgerConfigured reports whether the ledger can be connected.
func (c Config) LedgerConfigured() bool {
	return len(c.MissingLedgerSettings()) == 0
}

// AssistantConfigured reports whether the assistant endpoints are usable.
func (c Config) AssistantConfigured() bool {
	return strings.TrimSpace(c.AssistantAPIKey) != "" && strings.TrimSpace(c.AssistantBaseURL) != ""
}

// Location resolves TimeZone.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// KafkaBrokerList splits KafkaBrokers.
func (c Config) KafkaBrokerList() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")
	result := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
