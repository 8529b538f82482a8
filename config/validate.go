package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ConfigurationError is fatal: the run aborts before any network call
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Validate checks everything a run needs. Publishing credentials are not
// required in dry-run mode.
func (c Config) Validate() error {
	var problems []string

	if len(c.Feeds) == 0 {
		problems = append(problems, "no feed sources configured")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		u, err := url.Parse(f.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("feed %d (%s): invalid url %q", i, f.Name, f.URL))
			continue
		}
		if seen[f.URL] {
			problems = append(problems, fmt.Sprintf("feed %d (%s): duplicate url %q", i, f.Name, f.URL))
		}
		seen[f.URL] = true
	}

	if _, err := time.LoadLocation(c.Window.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", c.Window.Timezone))
	}
	if c.Window.EndHour < 0 || c.Window.EndHour > 24 {
		problems = append(problems, fmt.Sprintf("window endHour %d out of range", c.Window.EndHour))
	}

	if c.Ranking.Limit > MaxSelectLimit {
		problems = append(problems, fmt.Sprintf("ranking limit %d exceeds %d detail threads", c.Ranking.Limit, MaxSelectLimit))
	}
	for _, k := range c.Ranking.Keys {
		switch k {
		case "recency", "priority", "source":
		default:
			problems = append(problems, fmt.Sprintf("unknown ranking key %q", k))
		}
	}

	switch c.Generation.Provider {
	case "gemini", "cohere":
		if c.Generation.APIKey == "" {
			problems = append(problems, fmt.Sprintf("missing API key for generation provider %s", c.Generation.Provider))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown generation provider %q", c.Generation.Provider))
	}

	if !c.Publisher.DryRun {
		switch c.Publisher.Transport {
		case "x":
			if c.Publisher.X.AccessToken == "" && c.Publisher.X.RefreshToken == "" {
				problems = append(problems, "missing X credentials (X_ACCESS_TOKEN or X_REFRESH_TOKEN)")
			}
			if c.Publisher.X.RefreshToken != "" && c.Publisher.X.ClientID == "" {
				problems = append(problems, "X refresh token set without client id")
			}
		case "dryrun":
		default:
			problems = append(problems, fmt.Sprintf("unknown publisher transport %q", c.Publisher.Transport))
		}
	}

	switch c.State.Backend {
	case "file", "memory":
	case "redis":
		if c.State.Redis.Addr == "" {
			problems = append(problems, "redis state backend without address")
		}
	case "s3":
		if c.State.S3.Bucket == "" {
			problems = append(problems, "s3 state backend without bucket (S3_BUCKET)")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown state backend %q", c.State.Backend))
	}

	if c.Export.UploadS3 && c.State.S3.Bucket == "" {
		problems = append(problems, "export uploadS3 requires an S3 bucket")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}
