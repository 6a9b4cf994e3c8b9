package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `# stockpilot configuration

[server]
addr = ":8385"
ping_interval = "30s"
write_timeout = "10s"
subscriber_buffer = 64

[alerts]
# Applied when a product record has no reorder level set.
default_reorder_level = 10
# units/day, applied when a product has no consumption history.
default_daily_consumption = 0.5
# Projected days of stock at or below which a low level becomes critical.
critical_days = 3

[client]
server_url = "ws://localhost:8385/ws/alerts"
max_notifications = 10
notification_ttl = "10s"
max_retries = 5
base_delay = "1s"
max_delay = "30s"

[database]
# path = "/path/to/stockpilot.db"
`

// createTemplateConfig writes a commented config template so a first run
// leaves something editable behind.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configTemplate), 0o644)
}
