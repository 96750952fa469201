package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env           string `yaml:"env" env-default:"local"`
	StoragePath   string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	AdminKey      string `yaml:"admin_key" env:"ADMIN_KEY" env-required:"true"`
	HTTPServer    `yaml:"http_server"`
	Auth          `yaml:"auth"`
	Booking       `yaml:"booking"`
	Notifications `yaml:"notifications"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"24h"`
}

type Booking struct {
	// Weekday names the school is closed on. The source application
	// disagreed with itself between revisions (Mon+Sun vs Mon only),
	// so the set is configuration rather than a rule.
	ClosedWeekdays []string `yaml:"closed_weekdays" env-default:"Monday,Sunday"`
	Slots          []string `yaml:"slots" env-default:"10:00 - 13:00,15:00 - 18:00"`
	LessonsPerCycle int     `yaml:"lessons_per_cycle" env-default:"8"`
}

type Notifications struct {
	Retention time.Duration `yaml:"retention" env-default:"720h"`
}

func MustLoad() *Config {
	var cfg Config

	// .env is optional, real env vars win either way
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}

// ClosedDays resolves the configured weekday names once at startup.
func (c *Config) ClosedDays() map[time.Weekday]struct{} {
	names := map[string]time.Weekday{
		"Sunday":    time.Sunday,
		"Monday":    time.Monday,
		"Tuesday":   time.Tuesday,
		"Wednesday": time.Wednesday,
		"Thursday":  time.Thursday,
		"Friday":    time.Friday,
		"Saturday":  time.Saturday,
	}

	closed := make(map[time.Weekday]struct{}, len(c.Booking.ClosedWeekdays))
	for _, name := range c.Booking.ClosedWeekdays {
		wd, ok := names[name]
		if !ok {
			log.Fatalf("Unknown weekday in closed_weekdays: %s", name)
		}
		closed[wd] = struct{}{}
	}

	return closed
}
