package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Logging configuration
	LogLevel string

	// Storage configuration
	StorageBackend string
	DatabaseURL    string
	SQLitePath     string

	// AWS configuration
	AWSRegion string

	// DynamoDB configuration
	InstancesTableName      string
	DeploymentLogsTableName string
	ClientsTableName        string
	PlansTableName          string
	SubscriptionsTableName  string
	ReservationsTableName   string

	// Deployment configuration
	DeployScriptPath string
	DeployTimeout    time.Duration
	WorkerCount      int
	QueueSize        int

	// Allocation configuration
	PortFloor          int
	ContainerPrefix    string
	AllocationAttempts int

	// Auth and secrets
	JWTSecret                string
	CredentialsEncryptionKey string

	// Rate limiting (Redis optional)
	CreateRateLimit int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Optional fixture applied at start
	SeedFile string
}

// New loads the configuration and panics if it is invalid.
// Used at process start where a bad environment is fatal.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load reads configuration from the .env file (if present) and the OS environment.
// OS environment variables take precedence over .env file values.
func Load() (*Config, error) {
	// Load .env file from the working directory (silently ignore if not found)
	_ = godotenv.Load(filepath.Join(".", ".env"))

	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	deployTimeout, err := getEnvDuration("DEPLOY_TIMEOUT", 15*time.Minute)
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "3001"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		StorageBackend: strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendSQLite)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", filepath.Join("data", "provisioner.db")),

		AWSRegion: getEnvOrDefault("AWS_REGION", "us-east-1"),

		InstancesTableName:      getEnvOrDefault("DYNAMODB_INSTANCES_TABLE", "Instances"),
		DeploymentLogsTableName: getEnvOrDefault("DYNAMODB_DEPLOYMENT_LOGS_TABLE", "DeploymentLogs"),
		ClientsTableName:        getEnvOrDefault("DYNAMODB_CLIENTS_TABLE", "Clients"),
		PlansTableName:          getEnvOrDefault("DYNAMODB_PLANS_TABLE", "Plans"),
		SubscriptionsTableName:  getEnvOrDefault("DYNAMODB_SUBSCRIPTIONS_TABLE", "Subscriptions"),
		ReservationsTableName:   getEnvOrDefault("DYNAMODB_RESERVATIONS_TABLE", "Reservations"),

		DeployScriptPath: getEnvOrDefault("DEPLOY_SCRIPT_PATH", filepath.Join("..", "deploy-instance.sh")),
		DeployTimeout:    deployTimeout,
		WorkerCount:      intVar("WORKER_COUNT", 5),
		QueueSize:        intVar("QUEUE_SIZE", 100),

		PortFloor:          intVar("PORT_FLOOR", 8070),
		ContainerPrefix:    getEnvOrDefault("CONTAINER_PREFIX", "instance_"),
		AllocationAttempts: intVar("ALLOCATION_ATTEMPTS", 3),

		JWTSecret:                os.Getenv("JWT_SECRET"),
		CredentialsEncryptionKey: os.Getenv("CREDENTIALS_ENCRYPTION_KEY"),

		CreateRateLimit: intVar("CREATE_RATE_LIMIT", 10),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         intVar("REDIS_DB", 0),

		SeedFile: os.Getenv("SEED_FILE"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	if abs, err := filepath.Abs(cfg.DeployScriptPath); err == nil {
		cfg.DeployScriptPath = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() error {
	var missing []string

	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.CredentialsEncryptionKey == "" {
		missing = append(missing, "CREDENTIALS_ENCRYPTION_KEY")
	}
	if c.StorageBackend == BackendPostgres && c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration values: %v", missing)
	}

	// AES-256 needs a 32 byte key
	if len(c.CredentialsEncryptionKey) != 32 {
		return fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY must be exactly 32 characters (got %d)", len(c.CredentialsEncryptionKey))
	}

	switch c.StorageBackend {
	case BackendSQLite, BackendPostgres, BackendDynamoDB:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of %s, %s, %s (got '%s')", BackendSQLite, BackendPostgres, BackendDynamoDB, c.StorageBackend)
	}

	if c.DeployTimeout <= 0 {
		return fmt.Errorf("DEPLOY_TIMEOUT must be positive (got %s)", c.DeployTimeout)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1 (got %d)", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1 (got %d)", c.QueueSize)
	}
	if c.PortFloor < 1 || c.PortFloor > 65535 {
		return fmt.Errorf("PORT_FLOOR must be a valid port (got %d)", c.PortFloor)
	}
	if c.AllocationAttempts < 1 {
		return fmt.Errorf("ALLOCATION_ATTEMPTS must be at least 1 (got %d)", c.AllocationAttempts)
	}
	if c.CreateRateLimit < 0 {
		return fmt.Errorf("CREATE_RATE_LIMIT cannot be negative (got %d)", c.CreateRateLimit)
	}

	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer (got '%s')", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be a duration such as 15m (got '%s')", key, value)
	}
	return d, nil
}

// UsesSQL reports whether the relational backend is selected
func (c *Config) UsesSQL() bool {
	return c.StorageBackend == BackendSQLite || c.StorageBackend == BackendPostgres
}

// SQLDSN returns the connection string for the selected SQL backend
func (c *Config) SQLDSN() string {
	if c.StorageBackend == BackendPostgres {
		return c.DatabaseURL
	}
	return c.SQLitePath
}
