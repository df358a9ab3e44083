package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Duration is a time.Duration that reads from JSON as "10s" or as milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %s", b)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings are the process-level settings of a wamux instance.
type Settings struct {
	DataDir     string `json:"dataDir,omitempty"`
	CommandsDir string `json:"commandsDir,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Port        int    `json:"port,omitempty"`
	LogLevel    string `json:"logLevel,omitempty"`
	PrettyLogs  bool   `json:"prettyLogs,omitempty"`
	LogToFile   bool   `json:"logToFile,omitempty"`

	ReconnectDelay    Duration `json:"reconnectDelay,omitempty"`
	ReconnectMaxDelay Duration `json:"reconnectMaxDelay,omitempty"`
	SweepInterval     Duration `json:"sweepInterval,omitempty"`
	DisconnectTimeout Duration `json:"disconnectTimeout,omitempty"`
	WelcomeDelay      Duration `json:"welcomeDelay,omitempty"`
	WelcomeEnabled    *bool    `json:"welcomeEnabled,omitempty"`

	// BackupURL is the base URL of the credential blob store. Empty disables backups.
	BackupURL string `json:"backupUrl,omitempty"`
	// BackupToken is sent as a bearer token to the blob store.
	BackupToken string `json:"backupToken,omitempty"`

	// PairingNumber maps a session name to the phone number used for code pairing.
	// Sessions without an entry pair by QR code.
	PairingNumber map[string]string `json:"pairingNumber,omitempty"`
}

// Default returns settings with every field populated.
func Default() *Settings {
	welcome := true
	data := GetPaths().Data
	return &Settings{
		DataDir:           data,
		CommandsDir:       filepath.Join(data, "commands"),
		Hostname:          "127.0.0.1",
		Port:              8080,
		LogLevel:          "INFO",
		ReconnectDelay:    Duration(10 * time.Second),
		ReconnectMaxDelay: Duration(60 * time.Second),
		SweepInterval:     Duration(30 * time.Second),
		DisconnectTimeout: Duration(5 * time.Minute),
		WelcomeDelay:      Duration(3 * time.Second),
		WelcomeEnabled:    &welcome,
		PairingNumber:     map[string]string{},
	}
}

// Welcome reports whether the connect welcome notice is enabled.
func (s *Settings) Welcome() bool {
	return s.WelcomeEnabled == nil || *s.WelcomeEnabled
}

// Load loads settings from multiple sources (priority order):
// 1. .env in directory (values only fill unset variables)
// 2. Built-in defaults
// 3. Global settings (~/.config/wamux/wamux.jsonc)
// 4. Project settings (<directory>/wamux.jsonc or wamux.json)
// 5. WAMUX_CONFIG file
// 6. WAMUX_* environment variables
func Load(directory string) (*Settings, error) {
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	settings := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return nil
		}
		loaded[abs] = true
		err = loadSettingsFile(path, settings)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}

	paths := []string{GlobalSettingsPath()}
	if directory != "" {
		paths = append(paths,
			filepath.Join(directory, "wamux.json"),
			filepath.Join(directory, "wamux.jsonc"),
		)
	}
	if p := os.Getenv("WAMUX_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if err := loadOnce(p); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(settings); err != nil {
		return nil, err
	}

	if settings.CommandsDir == "" {
		settings.CommandsDir = filepath.Join(settings.DataDir, "commands")
	}
	return settings, nil
}

// loadSettingsFile merges one JSONC settings file into settings.
func loadSettingsFile(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileSettings Settings
	if err := json.Unmarshal(data, &fileSettings); err != nil {
		return err
	}
	mergeSettings(settings, &fileSettings)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate expands {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// mergeSettings copies non-zero fields of source into target.
func mergeSettings(target, source *Settings) {
	if source.DataDir != "" {
		target.DataDir = source.DataDir
		target.CommandsDir = ""
	}
	if source.CommandsDir != "" {
		target.CommandsDir = source.CommandsDir
	}
	if source.Hostname != "" {
		target.Hostname = source.Hostname
	}
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.PrettyLogs {
		target.PrettyLogs = true
	}
	if source.LogToFile {
		target.LogToFile = true
	}
	if source.ReconnectDelay != 0 {
		target.ReconnectDelay = source.ReconnectDelay
	}
	if source.ReconnectMaxDelay != 0 {
		target.ReconnectMaxDelay = source.ReconnectMaxDelay
	}
	if source.SweepInterval != 0 {
		target.SweepInterval = source.SweepInterval
	}
	if source.DisconnectTimeout != 0 {
		target.DisconnectTimeout = source.DisconnectTimeout
	}
	if source.WelcomeDelay != 0 {
		target.WelcomeDelay = source.WelcomeDelay
	}
	if source.WelcomeEnabled != nil {
		target.WelcomeEnabled = source.WelcomeEnabled
	}
	if source.BackupURL != "" {
		target.BackupURL = source.BackupURL
	}
	if source.BackupToken != "" {
		target.BackupToken = source.BackupToken
	}
	for name, number := range source.PairingNumber {
		if target.PairingNumber == nil {
			target.PairingNumber = make(map[string]string)
		}
		target.PairingNumber[name] = number
	}
}

// applyEnvOverrides applies WAMUX_* environment variables.
func applyEnvOverrides(s *Settings) error {
	if v := os.Getenv("WAMUX_DATA_DIR"); v != "" {
		s.DataDir = v
		s.CommandsDir = ""
	}
	if v := os.Getenv("WAMUX_COMMANDS_DIR"); v != "" {
		s.CommandsDir = v
	}
	if v := os.Getenv("WAMUX_HOSTNAME"); v != "" {
		s.Hostname = v
	}
	if v := os.Getenv("WAMUX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAMUX_PORT: %w", err)
		}
		s.Port = port
	}
	if v := os.Getenv("WAMUX_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("WAMUX_BACKUP_URL"); v != "" {
		s.BackupURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("WAMUX_BACKUP_TOKEN"); v != "" {
		s.BackupToken = v
	}
	durations := map[string]*Duration{
		"WAMUX_RECONNECT_DELAY":    &s.ReconnectDelay,
		"WAMUX_DISCONNECT_TIMEOUT": &s.DisconnectTimeout,
		"WAMUX_SWEEP_INTERVAL":     &s.SweepInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
	}
	return nil
}

// Save writes settings to path as indented JSON.
func Save(settings *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
