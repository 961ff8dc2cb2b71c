package redisstream

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "lenin-ui",
		Consumer: "ui-1",
	}
}
