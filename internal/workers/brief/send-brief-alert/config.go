// internal/workers/brief/send-brief-alert/config.go
package sendbriefalert

import "time"

type Config struct {
	EmailEnabled bool
	SNSEnabled   bool
	FromEmail    string
	OpsEmail     string
	TopicARN     string
	AWSRegion    string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
