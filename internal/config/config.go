package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	Server   ServerConfig
	CORS     CORSConfig
	MQTT     MQTTConfig
	Shift    ShiftConfig
	Tracking TrackingConfig
	Influx   InfluxConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type JWTConfig struct {
	AccessSecret string
}

type ServerConfig struct {
	Port    string
	GinMode string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Topic       string
	StatusTopic string // backend presence announcements
	Username    string
	Password    string
}

// ShiftConfig is the working window in shift-local time.
// The canonical shift is 06:00-18:00 at UTC+7, capped at 12 hours.
type ShiftConfig struct {
	StartHour      int
	StartMinute    int
	EndHour        int
	EndMinute      int
	HoursPerDay    float64
	UTCOffsetHours int
}

// TrackingConfig drives the watchdog and the accrual debounce.
type TrackingConfig struct {
	MessageTimeout    time.Duration
	ErrorTickInterval time.Duration
	MinUpdateInterval time.Duration
}

// InfluxConfig enables the reading archive when URL is set.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "spray_machine_monitoring"),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-key"),
		},
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", "tcp://broker.hivemq.com:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "spray_backend"),
			Topic:       getEnv("MQTT_TOPIC", "NgocHiepIOT/data"),
			StatusTopic: getEnv("MQTT_STATUS_TOPIC", "NgocHiepIOT/backend/status"),
			Username:    getEnv("MQTT_USER", ""),
			Password:    getEnv("MQTT_PASS", ""),
		},
		Shift: ShiftConfig{
			StartHour:      parseInt(getEnv("SHIFT_START_HOUR", "6"), 6),
			StartMinute:    parseInt(getEnv("SHIFT_START_MINUTE", "0"), 0),
			EndHour:        parseInt(getEnv("SHIFT_END_HOUR", "18"), 18),
			EndMinute:      parseInt(getEnv("SHIFT_END_MINUTE", "0"), 0),
			HoursPerDay:    parseFloat(getEnv("SHIFT_HOURS_PER_DAY", "12"), 12),
			UTCOffsetHours: parseInt(getEnv("SHIFT_UTC_OFFSET_HOURS", "7"), 7),
		},
		Tracking: TrackingConfig{
			MessageTimeout:    parseDuration(getEnv("MESSAGE_TIMEOUT", "10s"), 10*time.Second),
			ErrorTickInterval: parseDuration(getEnv("ERROR_TICK_INTERVAL", "10s"), 10*time.Second),
			MinUpdateInterval: parseDuration(getEnv("MIN_UPDATE_INTERVAL", "1s"), time.Second),
		},
		Influx: InfluxConfig{
			URL:    getEnv("INFLUX_URL", ""),
			Token:  getEnv("INFLUX_TOKEN", ""),
			Org:    getEnv("INFLUX_ORG", "my-org"),
			Bucket: getEnv("INFLUX_BUCKET", "spray"),
		},
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil || duration <= 0 {
		fmt.Printf("Warning: Invalid duration format '%s', using %s\n", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		fmt.Printf("Warning: Invalid integer '%s', using %d\n", s, fallback)
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		fmt.Printf("Warning: Invalid number '%s', using %v\n", s, fallback)
		return fallback
	}
	return f
}

func parseOrigins(s string) []string {
	origins := []string{}
	for _, origin := range strings.Split(s, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
