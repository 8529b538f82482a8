package config

import "time"

// Window defaults
const (
	// DefaultTimezone is the civil zone whose local day bounds the run window
	DefaultTimezone = "Asia/Kolkata"
)

// Feed fetching defaults
const (
	// DefaultFetchTimeout bounds a single feed request
	DefaultFetchTimeout = 20 * time.Second

	// DefaultFetchConcurrency limits simultaneous feed requests
	DefaultFetchConcurrency = 4

	// DefaultMaxItemsPerFeed caps entries taken from one feed document
	DefaultMaxItemsPerFeed = 6

	// DefaultMinSummaryChars triggers readability enrichment for thin summaries
	DefaultMinSummaryChars = 80

	// DefaultUserAgent is sent with feed and article requests
	DefaultUserAgent = "newsbot/1.0 (+https://github.com/newsbot)"
)

// Selection defaults
const (
	// DefaultSelectLimit is the number of detail threads per day
	DefaultSelectLimit = 10
	// MaxSelectLimit caps ranking.limit
	MaxSelectLimit = 10
)

// Generation defaults
const (
	DefaultProvider        = "gemini"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultGeminiFallback  = "gemini-2.5-flash-lite"
	DefaultCohereModel     = "command-r-plus"
	DefaultMaxAttempts     = 3
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 1024
	DefaultMaxHashtags     = 3
	DefaultHeadlineBudget  = 110
)

// Retry defaults shared by generation and publishing
const (
	DefaultRetryAttempts     = 4
	DefaultRetryBaseDelay    = 2 * time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultRetryMaxTotalWait = 2 * time.Minute
	DefaultRetryJitter       = 0.2
)

// Composition defaults
const (
	// DefaultMaxPostChars is the platform character budget per post
	DefaultMaxPostChars = 280

	// DefaultLinkWeight is how many characters a URL costs regardless of length
	DefaultLinkWeight = 23

	DefaultIndexTitle = "Tech/AI News"
)

// Publishing defaults
const (
	DefaultTransport      = "x"
	DefaultMaxPostsPerDay = 40
	DefaultPostInterval   = 3 * time.Second
	DefaultXBaseURL       = "https://api.twitter.com"
	DefaultXTokenURL      = "https://api.twitter.com/2/oauth2/token"
)

// State and service defaults
const (
	DefaultStateBackend = "file"
	DefaultStateDir     = "state"
	DefaultStatePrefix  = "newsbot"
	DefaultStateTTL     = 14 * 24 * time.Hour
	DefaultExportDir    = "output"
	DefaultCron         = "0 19 * * *"
	DefaultServerAddr   = ":8080"
	DefaultKafkaTopic   = "newsbot-run-requests"
	DefaultKafkaGroupID = "newsbot-consumer-group"
	DefaultRunTimeout   = 25 * time.Minute
	DefaultLogLevel     = "info"
)
