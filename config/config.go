package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"glownest/models"
)

type Config struct {
	HTTPPort    string
	DBPath      string
	DatabaseURL string
	LogLevel    string
	LogPath     string
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	Activity    ActivityConfig
	StreetsFile string
}

type SchedulerConfig struct {
	Cron string
}

type ScraperConfig struct {
	WorkerBin   string
	ListingType string
	MaxPages    int
	DelayMS     int
	Headful     bool
}

type ActivityConfig struct {
	CacheSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8000"),
		DBPath:      getEnv("DB_PATH", "glow_nest.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPath:     getEnv("LOG_PATH", "glownest.log"),
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			WorkerBin:   getEnv("WORKER_BIN", "glownest-worker"),
			ListingType: getEnv("SCRAPER_LISTING_TYPE", "sale"),
			MaxPages:    getEnvInt("SCRAPER_MAX_PAGES", 10),
			DelayMS:     getEnvInt("SCRAPER_DELAY_MS", 4000),
			Headful:     os.Getenv("SCRAPER_HEADFUL") == "true",
		},
		Activity: ActivityConfig{
			CacheSize: getEnvInt("ACTIVITY_CACHE_SIZE", 200),
		},
		StreetsFile: getEnv("STREETS_FILE", "config/streets.yaml"),
	}

	return cfg, nil
}

// LoadStreetSeed reads the bundled street-to-district reference file. A
// missing file is not an error; the map then grows through the API only.
func (c *Config) LoadStreetSeed() ([]models.StreetMapping, error) {
	data, err := os.ReadFile(c.StreetsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var seed struct {
		Streets []models.StreetMapping `yaml:"streets"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	return seed.Streets, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
