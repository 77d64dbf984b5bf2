// Package config centralises configuration parsing for the mileage service.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"

	"example.com/mileage/internal/domain"
	"example.com/mileage/internal/mileage"
)

// Config captures runtime configuration for the API and consumer binaries.
type Config struct {
	HTTPAddress    string `envconfig:"HTTP_ADDRESS" default:":8080"`
	MetricsAddress string `envconfig:"METRICS_ADDRESS" default:":9102"`

	// PostgresURL may be empty; the API then serves from an in-memory store.
	PostgresURL string `envconfig:"POSTGRES_URL"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" default:"kafka:9092"`
	ConsumerGroupID string   `envconfig:"CONSUMER_GROUP_ID" default:"mileage-service"`
	ConsumerTopics  []string `envconfig:"CONSUMER_TOPICS" default:"mileage.activities,mileage.profiles"`

	// EmbeddedConsumer runs the ingest consumer inside the API process,
	// invalidating its snapshot cache directly.
	EmbeddedConsumer bool `envconfig:"EMBEDDED_CONSUMER" default:"false"`

	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:5173"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"i5e.identity"`

	Timezone        string     `envconfig:"TIMEZONE" default:"Local"`
	CollationLocale string     `envconfig:"COLLATION_LOCALE" default:"en"`
	DashboardCards  CardList   `envconfig:"DASHBOARD_CARDS" default:"2025-12:Swim:10;2026-01:Bike:200;2026-02:Run:75"`
	AllThreeGoal    GoalTriple `envconfig:"ALL_THREE_GOAL" default:"10,200,75"`

	SnapshotCacheSize int           `envconfig:"SNAPSHOT_CACHE_SIZE" default:"64"`
	SnapshotCacheTTL  time.Duration `envconfig:"SNAPSHOT_CACHE_TTL" default:"1m"`
	SnapshotPageSize  int           `envconfig:"SNAPSHOT_PAGE_SIZE" default:"500"`

	CacheInvalidationURL     string        `envconfig:"CACHE_INVALIDATION_URL"`
	CacheInvalidationToken   string        `envconfig:"CACHE_INVALIDATION_TOKEN"`
	CacheInvalidationTimeout time.Duration `envconfig:"CACHE_INVALIDATION_TIMEOUT" default:"5s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Location *time.Location `ignored:"true"`
	Language language.Tag   `ignored:"true"`
}

// Load reads environment variables into Config and resolves the time zone
// and collation locale.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	tag, err := language.Parse(c.CollationLocale)
	if err != nil {
		return fmt.Errorf("COLLATION_LOCALE %q: %w", c.CollationLocale, err)
	}
	c.Language = tag

	if c.SnapshotPageSize <= 0 {
		return fmt.Errorf("SNAPSHOT_PAGE_SIZE must be positive, got %d", c.SnapshotPageSize)
	}
	if c.SnapshotCacheSize <= 0 {
		return fmt.Errorf("SNAPSHOT_CACHE_SIZE must be positive, got %d", c.SnapshotCacheSize)
	}
	return nil
}

// Cards returns the configured dashboard cards in the configured time zone,
// each classified against the shared all-three goal.
func (c Config) Cards() []domain.CardSpec {
	out := make([]domain.CardSpec, 0, len(c.DashboardCards))
	for _, card := range c.DashboardCards {
		out = append(out, domain.CardSpec{
			Title:  card.Title,
			Window: mileage.NewMonthWindow(card.Year, card.Month, c.Location),
			Goals: mileage.GoalConfig{
				MonthGoal: card.Goal,
				AllThree:  mileage.AllThreeGoal(c.AllThreeGoal),
			},
		})
	}
	return out
}

// ErrInvalidCard is returned for malformed DASHBOARD_CARDS entries.
var ErrInvalidCard = errors.New("invalid dashboard card")

// Card is one entry of DASHBOARD_CARDS: "YYYY-MM:Discipline:miles[:title]".
type Card struct {
	Year  int
	Month time.Month
	Goal  mileage.MonthGoal
	Title string
}

// CardList decodes a semicolon separated list of cards.
type CardList []Card

// Decode implements envconfig.Decoder.
func (l *CardList) Decode(value string) error {
	var cards CardList
	for _, raw := range strings.Split(value, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		card, err := parseCard(raw)
		if err != nil {
			return err
		}
		cards = append(cards, card)
	}
	*l = cards
	return nil
}

func parseCard(raw string) (Card, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return Card{}, fmt.Errorf("%w %q: want YYYY-MM:Discipline:miles", ErrInvalidCard, raw)
	}

	month, err := time.Parse("2006-01", strings.TrimSpace(parts[0]))
	if err != nil {
		return Card{}, fmt.Errorf("%w %q: month: %v", ErrInvalidCard, raw, err)
	}
	discipline, ok := mileage.ParseDiscipline(parts[1])
	if !ok {
		return Card{}, fmt.Errorf("%w %q: unknown discipline %q", ErrInvalidCard, raw, parts[1])
	}
	miles, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || miles < 0 {
		return Card{}, fmt.Errorf("%w %q: miles must be a non-negative number", ErrInvalidCard, raw)
	}

	card := Card{
		Year:  month.Year(),
		Month: month.Month(),
		Goal:  mileage.MonthGoal{Discipline: discipline, Miles: miles},
	}
	if len(parts) == 4 {
		card.Title = strings.TrimSpace(parts[3])
	}
	return card, nil
}

// GoalTriple decodes "swim,bike,run" thresholds.
type GoalTriple mileage.AllThreeGoal

// Decode implements envconfig.Decoder.
func (g *GoalTriple) Decode(value string) error {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return fmt.Errorf("want swim,bike,run thresholds, got %q", value)
	}
	var nums [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return fmt.Errorf("threshold %q must be a non-negative number", p)
		}
		nums[i] = v
	}
	*g = GoalTriple{Swim: nums[0], Bike: nums[1], Run: nums[2]}
	return nil
}
