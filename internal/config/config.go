package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"GO_ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// Blob storage: "s3" (R2 / S3 compatible) or "minio"
	BlobDriver string `mapstructure:"BLOB_DRIVER"`

	// R2 / S3
	R2AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `mapstructure:"R2_BUCKET_NAME"`
	R2PublicURL       string `mapstructure:"R2_PUBLIC_URL"` // Custom domain

	// MinIO
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MinioPublicURL string `mapstructure:"MINIO_PUBLIC_URL"`

	// Messaging
	DeletionGrace    time.Duration `mapstructure:"DELETION_GRACE"`
	PresenceInterval time.Duration `mapstructure:"PRESENCE_INTERVAL"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepCron        string        `mapstructure:"SWEEP_CRON"`
	TypingTTL        time.Duration `mapstructure:"TYPING_TTL"`
	MaxUploadBytes   int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	SendRateLimit    int           `mapstructure:"SEND_RATE_LIMIT"` // messages per minute per principal
}

var AppConfig *Config

// Default returns a Config populated with the messaging defaults.
func Default() *Config {
	return &Config{
		Port:             "8080",
		Env:              "development",
		BlobDriver:       "s3",
		DeletionGrace:    72 * time.Hour,
		PresenceInterval: 30 * time.Second,
		SweepInterval:    24 * time.Hour,
		SweepCron:        "@daily",
		TypingTTL:        3 * time.Second,
		MaxUploadBytes:   25 << 20,
		SendRateLimit:    60,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("PORT", d.Port)
	v.SetDefault("GO_ENV", d.Env)
	v.SetDefault("BLOB_DRIVER", d.BlobDriver)
	v.SetDefault("DELETION_GRACE", d.DeletionGrace)
	v.SetDefault("PRESENCE_INTERVAL", d.PresenceInterval)
	v.SetDefault("SWEEP_INTERVAL", d.SweepInterval)
	v.SetDefault("SWEEP_CRON", d.SweepCron)
	v.SetDefault("TYPING_TTL", d.TypingTTL)
	v.SetDefault("MAX_UPLOAD_BYTES", d.MaxUploadBytes)
	v.SetDefault("SEND_RATE_LIMIT", d.SendRateLimit)
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"DATABASE_URL", "JWT_SECRET", "FRONTEND_URL", "REDIS_URL",
		"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME", "R2_PUBLIC_URL",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL", "MINIO_PUBLIC_URL",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from the given .env file and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig() {
	cfg, err := Load(".env")
	if err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
	AppConfig = cfg
}
