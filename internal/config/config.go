package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all the configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Garmin   GarminConfig
}

// GarminConfig holds the credentials and endpoints for the Garmin Connect
// integration. Secrets are never defaulted; operations that need a missing
// credential fail with a configuration error at the call site.
type GarminConfig struct {
	ClientID        string `mapstructure:"clientid"`
	ClientSecret    string `mapstructure:"clientsecret"`
	AuthURL         string `mapstructure:"authurl"`
	TokenURL        string `mapstructure:"tokenurl"`
	APIBaseURL      string `mapstructure:"apibaseurl"`
	CallbackBaseURL string `mapstructure:"callbackbaseurl"`
	AppScheme       string `mapstructure:"appscheme"`
	AdminSecret     string `mapstructure:"adminsecret"`
}

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds the Redis configuration.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Load creates a new Config object from environment variables.
func Load() *Config {
	// --- Set up Viper ---
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	// Use a replacer to map env vars like SERVER_PORT to Server.Port
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Load .env into process environment for BindEnv to work with file-based envs
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ godotenv could not load .env: %v", err)
	}

	// Bind structured keys to environment variables
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("redis.url", "REDIS_URL")
	_ = viper.BindEnv("garmin.clientid", "GARMIN_CLIENT_ID")
	_ = viper.BindEnv("garmin.clientsecret", "GARMIN_CLIENT_SECRET")
	_ = viper.BindEnv("garmin.authurl", "GARMIN_AUTH_URL")
	_ = viper.BindEnv("garmin.tokenurl", "GARMIN_TOKEN_URL")
	_ = viper.BindEnv("garmin.apibaseurl", "GARMIN_API_BASE_URL")
	_ = viper.BindEnv("garmin.callbackbaseurl", "GARMIN_CALLBACK_BASE_URL")
	_ = viper.BindEnv("garmin.appscheme", "GARMIN_APP_SCHEME")
	_ = viper.BindEnv("garmin.adminsecret", "GARMIN_ADMIN_SECRET")

	// --- Read Configuration ---
	if err := viper.ReadInConfig(); err != nil {
		// Only log a warning if the .env file is not found.
		// We can still proceed if all config is set via environment variables.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("❌ Error reading config file: %s", err)
		} else {
			log.Printf("⚠️ .env file not found, relying on environment variables")
		}
	}

	// --- Unmarshal configuration into our struct ---
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("❌ Unable to decode config into struct: %v", err)
	}

	// --- Set default values ---
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	// Non-secret upstream endpoints have well-known defaults.
	if cfg.Garmin.AuthURL == "" {
		cfg.Garmin.AuthURL = "https://connect.garmin.com/oauth2Confirm"
	}
	if cfg.Garmin.TokenURL == "" {
		cfg.Garmin.TokenURL = "https://diauth.garmin.com/di-oauth2-service/oauth/token"
	}
	if cfg.Garmin.APIBaseURL == "" {
		cfg.Garmin.APIBaseURL = "https://apis.garmin.com"
	}

	log.Println("✅ Configuration loaded successfully")
	return &cfg
}
