package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	Identity  IdentityConfig
	Contract  ContractConfig
	Provision ProvisionConfig
	JWT       JWTConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MongoDBConfig is optional; with an empty URI the portal keeps status
// records in memory only.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// IdentityConfig locates the identity backend tiers. RegionalTemplate must
// contain one %s that is replaced with the region label.
type IdentityConfig struct {
	RegionalTemplate string
	GlobalRegion     string
	CentralAuthURL   string
	CentralAPIURL    string
	RequestTimeout   time.Duration
}

// ContractConfig carries the tenant settings used by the CLI and as portal
// defaults. The portal overrides these per login session.
type ContractConfig struct {
	Name     string
	DomainID string
	Region   string
}

// ProvisionConfig tunes the synchronization retry policy and the built-in
// role names.
type ProvisionConfig struct {
	SyncRetries int
	SyncDelay   time.Duration
	MemberRole  string
	AdminRole   string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "onboard")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("IDENTITY_GLOBAL_REGION", "gls")
	viper.SetDefault("IDENTITY_REQUEST_TIMEOUT", 30)
	viper.SetDefault("PROVISION_SYNC_RETRIES", 4)
	viper.SetDefault("PROVISION_SYNC_DELAY", 5)
	viper.SetDefault("PROVISION_MEMBER_ROLE", "_member_")
	viper.SetDefault("PROVISION_ADMIN_ROLE", "cpf_systemowner")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("SESSION_TTL", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Identity: IdentityConfig{
			RegionalTemplate: getEnvOrPanic("IDENTITY_REGIONAL_TEMPLATE"),
			GlobalRegion:     viper.GetString("IDENTITY_GLOBAL_REGION"),
			CentralAuthURL:   getEnvOrPanic("IDENTITY_CENTRAL_AUTH_URL"),
			CentralAPIURL:    getEnvOrPanic("IDENTITY_CENTRAL_API_URL"),
			RequestTimeout:   time.Duration(viper.GetInt("IDENTITY_REQUEST_TIMEOUT")) * time.Second,
		},
		Contract: ContractConfig{
			Name:     viper.GetString("CONTRACT_NAME"),
			DomainID: viper.GetString("CONTRACT_DOMAIN_ID"),
			Region:   viper.GetString("CONTRACT_REGION"),
		},
		Provision: ProvisionConfig{
			SyncRetries: viper.GetInt("PROVISION_SYNC_RETRIES"),
			SyncDelay:   time.Duration(viper.GetInt("PROVISION_SYNC_DELAY")) * time.Second,
			MemberRole:  viper.GetString("PROVISION_MEMBER_ROLE"),
			AdminRole:   viper.GetString("PROVISION_ADMIN_ROLE"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			SessionTTL:     time.Duration(viper.GetInt("SESSION_TTL")) * time.Minute,
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		log.Println("WARNING: JWT_SECRET is not set; set a secure value in production")
	}

	return cfg, nil
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
