// internal/workers/brief/extract-brief-fields/config.go
package extractbrieffields

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// The extraction loop may issue several GenAI calls before it
		// settles, so the job timeout covers the whole budget.
		Timeout: 120 * time.Second,
	}
}
