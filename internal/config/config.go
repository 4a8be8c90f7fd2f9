package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Vendors  VendorsConfig
	Raffle   RaffleConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string // sqlite or postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr    string
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	Checkin        string
	RaffleWinner   string
	ImportComplete string
}

// VendorsConfig holds everything the vendor adapters and the ticket
// classifier need. It is built once at startup and passed explicitly.
type VendorsConfig struct {
	Eventbrite   VendorConfig  `yaml:"eventbrite"`
	Eventioz     VendorConfig  `yaml:"eventioz"`
	FetchTimeout time.Duration `yaml:"-"`
	RetryDelay   time.Duration `yaml:"-"`
}

// VendorConfig maps ticket types to comma-separated vendor ticket ids and
// price points, e.g. workshop: "1234, 5678".
type VendorConfig struct {
	URL       string            `yaml:"url"`
	TicketIDs map[string]string `yaml:"ticket_ids"`
	Prices    map[string]string `yaml:"prices"`
}

type RaffleConfig struct {
	EligibleRoles []string
}

type AuthConfig struct {
	Realm string
	// Users maps a staff user name to a bcrypt password hash.
	Users map[string]string
}

func Load() (*Config, error) {
	vendors, err := loadVendors(getEnv("VENDOR_MAPPING_FILE", "vendors.yaml"))
	if err != nil {
		return nil, err
	}

	users, err := parseUsers(os.Getenv("STAFF_USERS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8085"),
			ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: SplitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite"),
			DSN:          getEnv("DB_DSN", "file:checkin.db?cache=shared"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: SplitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				Checkin:        getEnv("KAFKA_TOPIC_CHECKIN", "checkin.attendee.checkin"),
				RaffleWinner:   getEnv("KAFKA_TOPIC_RAFFLE", "checkin.raffle.winner"),
				ImportComplete: getEnv("KAFKA_TOPIC_IMPORT", "checkin.import.completed"),
			},
		},
		Vendors: *vendors,
		Raffle: RaffleConfig{
			EligibleRoles: SplitList(getEnv("RAFFLE_ROLES", "attendee")),
		},
		Auth: AuthConfig{
			Realm: getEnv("AUTH_REALM", "checkin"),
			Users: users,
		},
	}, nil
}

func loadVendors(path string) (*VendorsConfig, error) {
	vendors := &VendorsConfig{}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		vendors, err = ParseVendors(f)
		if err != nil {
			return nil, fmt.Errorf("vendor mapping file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// mappings are optional; env vars may still provide them
	default:
		return nil, fmt.Errorf("open vendor mapping file: %w", err)
	}

	vendors.Eventbrite.URL = getEnv("EVENTBRITE_URL", vendors.Eventbrite.URL)
	vendors.Eventioz.URL = getEnv("EVENTIOZ_URL", vendors.Eventioz.URL)
	applyMappingEnv(&vendors.Eventbrite, "EVENTBRITE", os.Environ())
	applyMappingEnv(&vendors.Eventioz, "EVENTIOZ", os.Environ())

	vendors.FetchTimeout = getEnvDuration("VENDOR_FETCH_TIMEOUT", 10*time.Second)
	vendors.RetryDelay = getEnvDuration("VENDOR_RETRY_DELAY", 500*time.Millisecond)
	return vendors, nil
}

// ParseVendors decodes the YAML vendor mapping document.
func ParseVendors(r io.Reader) (*VendorsConfig, error) {
	var vendors VendorsConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vendors); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &vendors, nil
}

// applyMappingEnv reads <PREFIX>_TICKET_IDS_<TYPE> and <PREFIX>_PRICES_<TYPE>.
// Ticket types are lower-cased.
func applyMappingEnv(vc *VendorConfig, prefix string, environ []string) {
	idsPrefix := prefix + "_TICKET_IDS_"
	pricesPrefix := prefix + "_PRICES_"

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(key, idsPrefix):
			if vc.TicketIDs == nil {
				vc.TicketIDs = map[string]string{}
			}
			vc.TicketIDs[strings.ToLower(strings.TrimPrefix(key, idsPrefix))] = value
		case strings.HasPrefix(key, pricesPrefix):
			if vc.Prices == nil {
				vc.Prices = map[string]string{}
			}
			vc.Prices[strings.ToLower(strings.TrimPrefix(key, pricesPrefix))] = value
		}
	}
}

// parseUsers reads "alice:<bcrypt>,bob:<bcrypt>".
func parseUsers(raw string) (map[string]string, error) {
	users := map[string]string{}
	for _, entry := range SplitList(raw) {
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("invalid STAFF_USERS entry %q", entry)
		}
		users[name] = hash
	}
	return users, nil
}

// SplitList splits a comma-separated list, trimming whitespace and
// dropping empty items.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
