package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the settings that shape a run
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("LeadWatch", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("address", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)).
		Str("agent_mode", config.Agent.Mode).
		Str("target_domain", config.Watch.TargetDomain).
		Str("badger_path", config.Storage.Badger.Path).
		Msg("LeadWatch starting")
}
