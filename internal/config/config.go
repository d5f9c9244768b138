// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	ObjectStore ObjectStoreConfig
	Drive       DriveConfig
	Journal     JournalConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

// ObjectStoreConfig encapsulates the connection info for the S3-compatible bucket.
type ObjectStoreConfig struct {
	Driver         string
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

type DriveConfig struct {
	RootFolder      string
	CredentialsJSON string
	CredentialsFile string
}

type JournalConfig struct {
	Driver    string
	BadgerDir string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type MetricsConfig struct {
	Enabled bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.New()
		setDefaults(v)

		// Read from environment variables
		v.AutomaticEnv()

		instance = fromViper(v)

		if instance.Journal.Driver == "badger" {
			ensureDir(instance.Journal.BadgerDir)
		}
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("S3_DRIVER", "minio")
	v.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	v.SetDefault("S3_REGION", "us-west-2")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_FORCE_PATH_STYLE", false)
	v.SetDefault("GDRIVE_ROOT_FOLDER", "root")
	v.SetDefault("JOURNAL_DRIVER", "none")
	v.SetDefault("JOURNAL_BADGER_DIR", "./data/journal")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cloudpath")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("METRICS_ENABLED", true)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		ObjectStore: ObjectStoreConfig{
			Driver:         v.GetString("S3_DRIVER"),
			Endpoint:       v.GetString("S3_ENDPOINT"),
			Region:         v.GetString("S3_REGION"),
			Bucket:         v.GetString("S3_BUCKET"),
			AccessKey:      v.GetString("S3_ID"),
			SecretKey:      v.GetString("S3_SECRET"),
			UseSSL:         v.GetBool("S3_USE_SSL"),
			ForcePathStyle: v.GetBool("S3_FORCE_PATH_STYLE"),
		},
		Drive: DriveConfig{
			RootFolder:      v.GetString("GDRIVE_ROOT_FOLDER"),
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			CredentialsFile: v.GetString("GDRIVE_CREDENTIALS_FILE"),
		},
		Journal: JournalConfig{
			Driver:    v.GetString("JOURNAL_DRIVER"),
			BadgerDir: v.GetString("JOURNAL_BADGER_DIR"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}

// Credentials returns the Drive service account key, reading
// GDRIVE_CREDENTIALS_FILE when the inline JSON is not set.
func (c DriveConfig) Credentials() ([]byte, error) {
	if c.CredentialsJSON != "" {
		return []byte(c.CredentialsJSON), nil
	}
	if c.CredentialsFile == "" {
		return nil, fmt.Errorf("GOOGLE_DRIVE_CREDENTIALS_JSON or GDRIVE_CREDENTIALS_FILE is required")
	}
	b, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials %s: %w", c.CredentialsFile, err)
	}
	return b, nil
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
