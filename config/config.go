package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"newsbot/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "NEWSBOT_CONFIG"

// Config holds every setting the pipeline and its services need
type Config struct {
	Feeds      []types.FeedSource `yaml:"feeds"`
	Window     WindowConfig       `yaml:"window"`
	Fetch      FetchConfig        `yaml:"fetch"`
	Ranking    RankingConfig      `yaml:"ranking"`
	Generation GenerationConfig   `yaml:"generation"`
	Retry      RetryConfig        `yaml:"retry"`
	Compose    ComposeConfig      `yaml:"compose"`
	Publisher  PublisherConfig    `yaml:"publisher"`
	State      StateConfig        `yaml:"state"`
	Export     ExportConfig       `yaml:"export"`
	Scheduler  SchedulerConfig    `yaml:"scheduler"`
	Server     ServerConfig       `yaml:"server"`
	Kafka      KafkaConfig        `yaml:"kafka"`
	Run        RunConfig          `yaml:"run"`
	Log        LogConfig          `yaml:"log"`
}

// WindowConfig defines the civil day used to filter items
type WindowConfig struct {
	Timezone string `yaml:"timezone"`
	// EndHour caps the window end at this local hour when the run is later. 0 disables.
	EndHour  int            `yaml:"endHour"`
	location *time.Location `yaml:"-"`
}

// Location returns the resolved window zone
func (w WindowConfig) Location() *time.Location {
	if w.location != nil {
		return w.location
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FetchConfig controls the feed client
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	Concurrency     int           `yaml:"concurrency"`
	MaxItemsPerFeed int           `yaml:"maxItemsPerFeed"`
	UserAgent       string        `yaml:"userAgent"`
	EnrichSummaries bool          `yaml:"enrichSummaries"`
	MinSummaryChars int           `yaml:"minSummaryChars"`
}

// RankingConfig selects the ranking key chain
type RankingConfig struct {
	Keys           []string       `yaml:"keys"`
	Limit          int            `yaml:"limit"`
	SourcePriority map[string]int `yaml:"sourcePriority"`
}

// GenerationConfig configures the text-generation collaborator
type GenerationConfig struct {
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	FallbackModel   string   `yaml:"fallbackModel"`
	APIKey          string   `yaml:"apiKey"`
	MaxAttempts     int      `yaml:"maxAttempts"`
	Temperature     float64  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"maxOutputTokens"`
	MaxHashtags     int      `yaml:"maxHashtags"`
	HeadlineBudget  int      `yaml:"headlineBudget"`
	DefaultHashtags []string `yaml:"defaultHashtags"`
}

// RetryConfig is the shared backoff policy
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	BaseDelay    time.Duration `yaml:"baseDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	MaxTotalWait time.Duration `yaml:"maxTotalWait"`
	Jitter       float64       `yaml:"jitter"`
}

// ComposeConfig sets post budgets and headers
type ComposeConfig struct {
	MaxPostChars int    `yaml:"maxPostChars"`
	LinkWeight   int    `yaml:"linkWeight"`
	IndexTitle   string `yaml:"indexTitle"`
}

// PublisherConfig configures the posting collaborator
type PublisherConfig struct {
	Transport      string        `yaml:"transport"`
	DryRun         bool          `yaml:"dryRun"`
	MaxPostsPerDay int           `yaml:"maxPostsPerDay"`
	PostInterval   time.Duration `yaml:"postInterval"`
	X              XConfig       `yaml:"x"`
}

// XConfig holds the OAuth2 user-context credentials for the X API
type XConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	TokenURL     string `yaml:"tokenUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	AccessToken  string `yaml:"accessToken"`
	RefreshToken string `yaml:"refreshToken"`
}

// StateConfig selects and configures the RunState backend
type StateConfig struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
	S3      S3Config      `yaml:"s3"`
}

// RedisConfig describes the Redis connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// S3Config describes the bucket used for state and exports
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// ExportConfig controls the markdown export of a day's threads
type ExportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	UploadS3 bool   `yaml:"uploadS3"`
}

// SchedulerConfig defines when the daily run fires (in the window zone)
type SchedulerConfig struct {
	Cron string `yaml:"cron"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// KafkaConfig configures the optional run-request consumer
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupId"`
}

// RunConfig bounds a whole run
type RunConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env, the YAML file at path (or $NEWSBOT_CONFIG) if present and
// applies environment overrides on top of defaults. It does not validate.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, &ConfigurationError{Problems: []string{fmt.Sprintf("cannot read config %s: %v", path, err)}}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, &ConfigurationError{Problems: []string{fmt.Sprintf("cannot parse config %s: %v", path, err)}}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.bindTimezone()
	return cfg, nil
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Window: WindowConfig{Timezone: DefaultTimezone},
		Fetch: FetchConfig{
			Timeout:         DefaultFetchTimeout,
			Concurrency:     DefaultFetchConcurrency,
			MaxItemsPerFeed: DefaultMaxItemsPerFeed,
			UserAgent:       DefaultUserAgent,
			EnrichSummaries: true,
			MinSummaryChars: DefaultMinSummaryChars,
		},
		Ranking: RankingConfig{Keys: []string{"recency"}, Limit: DefaultSelectLimit},
		Generation: GenerationConfig{
			Provider:        DefaultProvider,
			MaxAttempts:     DefaultMaxAttempts,
			Temperature:     DefaultTemperature,
			MaxOutputTokens: DefaultMaxOutputTokens,
			MaxHashtags:     DefaultMaxHashtags,
			HeadlineBudget:  DefaultHeadlineBudget,
			DefaultHashtags: []string{"#TechNews", "#AI"},
		},
		Retry: RetryConfig{
			MaxAttempts:  DefaultRetryAttempts,
			BaseDelay:    DefaultRetryBaseDelay,
			MaxDelay:     DefaultRetryMaxDelay,
			MaxTotalWait: DefaultRetryMaxTotalWait,
			Jitter:       DefaultRetryJitter,
		},
		Compose: ComposeConfig{
			MaxPostChars: DefaultMaxPostChars,
			LinkWeight:   DefaultLinkWeight,
			IndexTitle:   DefaultIndexTitle,
		},
		Publisher: PublisherConfig{
			Transport:      DefaultTransport,
			MaxPostsPerDay: DefaultMaxPostsPerDay,
			PostInterval:   DefaultPostInterval,
			X:              XConfig{BaseURL: DefaultXBaseURL, TokenURL: DefaultXTokenURL},
		},
		State: StateConfig{
			Backend: DefaultStateBackend,
			Dir:     DefaultStateDir,
			Prefix:  DefaultStatePrefix,
			TTL:     DefaultStateTTL,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Export:    ExportConfig{Enabled: true, Dir: DefaultExportDir},
		Scheduler: SchedulerConfig{Cron: DefaultCron},
		Server:    ServerConfig{Addr: DefaultServerAddr},
		Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: DefaultKafkaTopic, GroupID: DefaultKafkaGroupID},
		Run:       RunConfig{Timeout: DefaultRunTimeout},
		Log:       LogConfig{Level: DefaultLogLevel},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEWSBOT_FEEDS"); v != "" {
		if feeds := ParseFeedList(v); len(feeds) > 0 {
			c.Feeds = feeds
		}
	}
	if v := os.Getenv("NEWSBOT_TIMEZONE"); v != "" {
		c.Window.Timezone = v
	}
	if v := os.Getenv("NEWSBOT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NEWSBOT_PROVIDER"); v != "" {
		c.Generation.Provider = strings.ToLower(v)
	}

	switch c.Generation.Provider {
	case "cohere":
		if v := os.Getenv("COHERE_API_KEY"); v != "" {
			c.Generation.APIKey = v
		}
	default:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.Generation.APIKey = v
		}
	}

	if v := os.Getenv("NEWSBOT_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Publisher.DryRun = b
		}
	}
	if v := os.Getenv("NEWSBOT_MAX_POSTS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Publisher.MaxPostsPerDay = n
		}
	}
	if v := os.Getenv("X_CLIENT_ID"); v != "" {
		c.Publisher.X.ClientID = v
	}
	if v := os.Getenv("X_CLIENT_SECRET"); v != "" {
		c.Publisher.X.ClientSecret = v
	}
	if v := os.Getenv("X_ACCESS_TOKEN"); v != "" {
		c.Publisher.X.AccessToken = v
	}
	if v := os.Getenv("X_REFRESH_TOKEN"); v != "" {
		c.Publisher.X.RefreshToken = v
	}

	if v := os.Getenv("NEWSBOT_STATE_BACKEND"); v != "" {
		c.State.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.State.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASS"); v != "" {
		c.State.Redis.Password = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.State.S3.Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_PREFIX"); v != "" {
		c.State.S3.Prefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.State.S3.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_PROFILE"); v != "" {
		c.State.S3.Profile = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		c.State.S3.UsePathStyle = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	if v := os.Getenv("KAFKA_BOOTSTRAP_SERVERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC_RUN_REQUESTS"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
}

// applyDefaults fills zero values a partial YAML file may leave behind
func (c *Config) applyDefaults() {
	d := Default()
	if c.Window.Timezone == "" {
		c.Window.Timezone = d.Window.Timezone
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = d.Fetch.Timeout
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = d.Fetch.Concurrency
	}
	if c.Fetch.MaxItemsPerFeed <= 0 {
		c.Fetch.MaxItemsPerFeed = d.Fetch.MaxItemsPerFeed
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = d.Fetch.UserAgent
	}
	if len(c.Ranking.Keys) == 0 {
		c.Ranking.Keys = d.Ranking.Keys
	}
	if c.Ranking.Limit <= 0 {
		c.Ranking.Limit = d.Ranking.Limit
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = d.Generation.Provider
	}
	if c.Generation.Model == "" {
		switch c.Generation.Provider {
		case "cohere":
			c.Generation.Model = DefaultCohereModel
		default:
			c.Generation.Model = DefaultGeminiModel
			if c.Generation.FallbackModel == "" {
				c.Generation.FallbackModel = DefaultGeminiFallback
			}
		}
	}
	if c.Generation.MaxAttempts <= 0 {
		c.Generation.MaxAttempts = d.Generation.MaxAttempts
	}
	if c.Generation.MaxOutputTokens <= 0 {
		c.Generation.MaxOutputTokens = d.Generation.MaxOutputTokens
	}
	if c.Generation.HeadlineBudget <= 0 {
		c.Generation.HeadlineBudget = d.Generation.HeadlineBudget
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.Retry.MaxTotalWait <= 0 {
		c.Retry.MaxTotalWait = d.Retry.MaxTotalWait
	}
	if c.Compose.MaxPostChars <= 0 {
		c.Compose.MaxPostChars = d.Compose.MaxPostChars
	}
	if c.Compose.LinkWeight <= 0 {
		c.Compose.LinkWeight = d.Compose.LinkWeight
	}
	if c.Compose.IndexTitle == "" {
		c.Compose.IndexTitle = d.Compose.IndexTitle
	}
	if c.Publisher.Transport == "" {
		c.Publisher.Transport = d.Publisher.Transport
	}
	if c.Publisher.MaxPostsPerDay <= 0 {
		c.Publisher.MaxPostsPerDay = d.Publisher.MaxPostsPerDay
	}
	if c.Publisher.X.BaseURL == "" {
		c.Publisher.X.BaseURL = d.Publisher.X.BaseURL
	}
	if c.Publisher.X.TokenURL == "" {
		c.Publisher.X.TokenURL = d.Publisher.X.TokenURL
	}
	if c.State.Backend == "" {
		c.State.Backend = d.State.Backend
	}
	if c.State.Dir == "" {
		c.State.Dir = d.State.Dir
	}
	if c.State.Prefix == "" {
		c.State.Prefix = d.State.Prefix
	}
	if c.Export.Dir == "" {
		c.Export.Dir = d.Export.Dir
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = d.Scheduler.Cron
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = d.Kafka.Topic
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = d.Kafka.GroupID
	}
	if c.Run.Timeout <= 0 {
		c.Run.Timeout = d.Run.Timeout
	}
}

func (c *Config) bindTimezone() {
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		// Validate reports the bad zone; keep the default so callers never see nil
		slog.Warn("config: unknown timezone", "timezone", c.Window.Timezone, "error", err)
		return
	}
	c.Window.location = loc
}

// ParseFeedList parses "name=url,name=url". Entries without a name use the URL as name.
func ParseFeedList(raw string) []types.FeedSource {
	var feeds []types.FeedSource
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, found := strings.Cut(entry, "=")
		if !found || strings.Contains(name, "://") {
			name, url = entry, entry
		}
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if url == "" {
			continue
		}
		feeds = append(feeds, types.FeedSource{Name: name, URL: url})
	}
	return feeds
}
