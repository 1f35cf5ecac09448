package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("Pipewatch", GetVersion())

	if logger != nil {
		logger.Info().
			Str("version", GetFullVersion()).
			Str("backend", config.Backend.BaseURL).
			Int("kinds", len(config.EnabledKinds())).
			Msg("Pipewatch starting")
	}
}
