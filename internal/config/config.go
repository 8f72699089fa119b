package config

// Config holds every value the bridge reads from its configuration
// file (spec §6).
type Config struct {
	SlackToken string `mapstructure:"slack_token"`
	Password   string `mapstructure:"password"`
	Port       int    `mapstructure:"port"`
	UnixSocket string `mapstructure:"unix_socket"`
	DebugDump  bool   `mapstructure:"debug_dump"`
}

// Default returns the configuration in effect before any file, env
// var, or flag override is applied.
func Default() Config {
	return Config{
		Port: 6667,
	}
}
