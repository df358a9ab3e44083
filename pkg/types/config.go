package types

// DefaultBotName is the display name written into a fresh config file.
const DefaultBotName = "wamux"

// Config is the persisted session configuration file.
type Config struct {
	BotName  string              `json:"BOT_NAME"`
	Sessions []SessionDescriptor `json:"sessions"`
}

// DefaultConfig returns the configuration used when none exists or it cannot be parsed.
func DefaultConfig() *Config {
	return &Config{
		BotName:  DefaultBotName,
		Sessions: []SessionDescriptor{},
	}
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := &Config{BotName: c.BotName, Sessions: make([]SessionDescriptor, 0, len(c.Sessions))}
	for _, s := range c.Sessions {
		out.Sessions = append(out.Sessions, s.Clone())
	}
	return out
}

// Names returns the session names in file order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		names = append(names, s.Name)
	}
	return names
}
