package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, etc.), security settings
// - default: Values common across all environments (timezone, timeout, etc.), standard settings
// -----------------------------------------------------------------------------

type Config struct {
	Server      ServerConfig
	DB          DBConfig
	CORS        CORSConfig
	Log         LogConfig
	Reservation ReservationConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Scheduler   SchedulerConfig
	Cron        CronConfig
	Redis       RedisConfig
	Notify      NotifyConfig
	SMTP        SMTPConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	Host        string `envconfig:"DB_HOST" default:"localhost"`
	Port        string `envconfig:"DB_PORT" default:"5432"`
	User        string `envconfig:"DB_USER" required:"true"`
	Password    string `envconfig:"DB_PASSWORD" required:"true"`
	DBName      string `envconfig:"DB_NAME" required:"true"`
	SSLMode     string `envconfig:"DB_SSL_MODE" default:"disable"`
	TimeZone    string `envconfig:"DB_TIMEZONE" default:"Asia/Jakarta"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"20"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"Asia/Jakarta"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"25200"` // 7*60*60
}

// ReservationConfig drives the in-process stock lock table.
type ReservationConfig struct {
	DefaultHold       time.Duration `envconfig:"RESERVATION_DEFAULT_HOLD" default:"30m"`
	ValidationWindow  time.Duration `envconfig:"RESERVATION_VALIDATION_WINDOW" default:"24h"`
	FinalPaymentHold  time.Duration `envconfig:"RESERVATION_FINAL_PAYMENT_HOLD" default:"48h"`
	WarnLockCount     int           `envconfig:"RESERVATION_WARN_LOCK_COUNT" default:"1000"`
	CriticalLockCount int           `envconfig:"RESERVATION_CRITICAL_LOCK_COUNT" default:"5000"`
	WarnHoldAge       time.Duration `envconfig:"RESERVATION_WARN_HOLD_AGE" default:"26h"`
	CriticalHoldAge   time.Duration `envconfig:"RESERVATION_CRITICAL_HOLD_AGE" default:"72h"`
	RefundAfter       time.Duration `envconfig:"RESERVATION_REFUND_AFTER" default:"1h"`
	ReminderWindow    time.Duration `envconfig:"RESERVATION_REMINDER_WINDOW" default:"10m"`
}

type QueueConfig struct {
	Driver            string        `envconfig:"QUEUE_DRIVER" default:"postgres"` // postgres | redis | memory
	VisibilityTimeout time.Duration `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"QUEUE_MAX_RETRIES" default:"3"`
	Backoff           string        `envconfig:"QUEUE_BACKOFF" default:"5s,30s,5m"`
	RedisKeyPrefix    string        `envconfig:"QUEUE_REDIS_KEY_PREFIX" default:"jastip:jobs"`
}

type WorkerConfig struct {
	Enabled           bool          `envconfig:"WORKER_ENABLED" default:"true"`
	PollInterval      time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s"`
	HealthLogInterval time.Duration `envconfig:"WORKER_HEALTH_LOG_INTERVAL" default:"1m"`
	ShutdownGrace     time.Duration `envconfig:"WORKER_SHUTDOWN_GRACE" default:"30s"`
}

// SchedulerConfig enables the in-process trigger for recurring sweeps.
// External cron can call /internal/cron/:sweep instead.
type SchedulerConfig struct {
	Enabled           bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	ExpireUnpaidEvery time.Duration `envconfig:"SCHEDULER_EXPIRE_UNPAID_EVERY" default:"1m"`
	AutoRejectEvery   time.Duration `envconfig:"SCHEDULER_AUTO_REJECT_EVERY" default:"5m"`
	ReservationsEvery time.Duration `envconfig:"SCHEDULER_RESERVATIONS_EVERY" default:"1m"`
	ReconcileEvery    time.Duration `envconfig:"SCHEDULER_RECONCILE_EVERY" default:"10m"`
	RemindersEvery    time.Duration `envconfig:"SCHEDULER_REMINDERS_EVERY" default:"5m"`
}

type CronConfig struct {
	Secret string `envconfig:"CRON_SECRET" required:"true"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type NotifyConfig struct {
	Driver           string        `envconfig:"NOTIFY_DRIVER" default:"log"` // log | smtp
	RatePerSecond    float64       `envconfig:"NOTIFY_RATE_PER_SECOND" default:"5"`
	Burst            int           `envconfig:"NOTIFY_BURST" default:"10"`
	BreakerFailures  uint32        `envconfig:"NOTIFY_BREAKER_FAILURES" default:"5"`
	BreakerOpenDelay time.Duration `envconfig:"NOTIFY_BREAKER_OPEN_DELAY" default:"30s"`
}

type SMTPConfig struct {
	Host     string `envconfig:"SMTP_HOST" default:"localhost"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	From     string `envconfig:"SMTP_FROM" default:"noreply@jastip.local"`
	Username string `envconfig:"SMTP_USERNAME" default:""`
	Password string `envconfig:"SMTP_PASSWORD" default:""`
	TLS      bool   `envconfig:"SMTP_TLS" default:"true"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&timezone=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.TimeZone,
	)
}

// BackoffSteps parses QUEUE_BACKOFF ("5s,30s,5m") into durations.
func (c *QueueConfig) BackoffSteps() ([]time.Duration, error) {
	parts := strings.Split(c.Backoff, ",")
	steps := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("invalid QUEUE_BACKOFF entry %q: %w", p, err)
		}
		steps = append(steps, d)
	}
	if len(steps) == 0 {
		return nil, errors.New("QUEUE_BACKOFF must contain at least one duration")
	}
	return steps, nil
}

func LoadConfig() (Config, error) {
	// .env is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	if _, err := cfg.Queue.BackoffSteps(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			TimeZone: "Asia/Jakarta",
			MaxConns: 10,
		},
		Log: LogConfig{
			Level:          "error", // Error level only for tests
			TimeZone:       "Asia/Jakarta",
			TimeFormat:     "2006-01-02 15:04:05.000",
			TimeZoneOffset: 25200,
		},
		Reservation: ReservationConfig{
			DefaultHold:       30 * time.Minute,
			ValidationWindow:  24 * time.Hour,
			FinalPaymentHold:  48 * time.Hour,
			WarnLockCount:     1000,
			CriticalLockCount: 5000,
			WarnHoldAge:       26 * time.Hour,
			CriticalHoldAge:   72 * time.Hour,
			RefundAfter:       time.Hour,
			ReminderWindow:    10 * time.Minute,
		},
		Queue: QueueConfig{
			Driver:            "memory",
			VisibilityTimeout: 30 * time.Second,
			MaxRetries:        3,
			Backoff:           "5s,30s,5m",
			RedisKeyPrefix:    "jastip:test:jobs",
		},
		Worker: WorkerConfig{
			Enabled:           false,
			PollInterval:      10 * time.Millisecond,
			HealthLogInterval: time.Minute,
			ShutdownGrace:     time.Second,
		},
		Cron: CronConfig{
			Secret: "test-cron-secret",
		},
		Notify: NotifyConfig{
			Driver:           "log",
			RatePerSecond:    100,
			Burst:            100,
			BreakerFailures:  5,
			BreakerOpenDelay: time.Second,
		},
	}
}
