// internal/workers/brief/preview-brief/config.go
package previewbrief

import "time"

type Config struct {
	AppVersion string
	Timeout    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		AppVersion: "1.0.0",
		Timeout:    10 * time.Second,
	}
}
