package redisstream

// Settings holds Redis Streams transport configuration for Watermill.
// When Enabled is false an in-process gochannel pub/sub is used instead.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

// DefaultSettings mirrors the flag defaults of the serve command.
func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "pinchchat",
		Consumer: "pinchchat-1",
	}
}
