package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/heyjunin/vodforge/pkg/errors"
)

//go:embed sample_config.toml
var sampleConfig string

// Storage backends.
const (
	BackendS3  = "s3"
	BackendDir = "dir"
)

const (
	defaultStateDir       = "~/.local/share/vodforge"
	defaultOutputDir      = "~/vodforge-output"
	defaultConcurrency    = 2
	defaultJobTimeoutSecs = 900
	defaultSegmentSecs    = 10
	defaultPresignTTLSecs = 3600
	defaultTopic          = "vodforge.intake"
	defaultGroupID        = "vodforge-workers"
	defaultRedisChannel   = "video_events"
	defaultNotifyTimeout  = 5
	defaultAPIBind        = "127.0.0.1:8680"
	defaultLogLevel       = "info"
)

// Worker tunes the daemon loop.
type Worker struct {
	// StateDir holds the job record database and the daemon lock file.
	StateDir string `toml:"state_dir"`
	// Concurrency bounds how many jobs run at once.
	Concurrency int `toml:"concurrency"`
	// JobTimeoutSeconds is the per-job deadline.
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`
}

// FFmpeg locates the encoder binaries and tunes segmenting.
type FFmpeg struct {
	FFmpegBinary   string   `toml:"ffmpeg_binary"`
	FFprobeBinary  string   `toml:"ffprobe_binary"`
	WorkDir        string   `toml:"work_dir"`
	SegmentSeconds int      `toml:"segment_seconds"`
	ExtraArgs      []string `toml:"extra_args"`
}

// Storage selects where renditions land: an S3 bucket or a local
// directory tree.
type Storage struct {
	Backend           string `toml:"backend"`
	Bucket            string `toml:"bucket"`
	Region            string `toml:"region"`
	Endpoint          string `toml:"endpoint"`
	UsePathStyle      bool   `toml:"use_path_style"`
	PublicBaseURL     string `toml:"public_base_url"`
	Dir               string `toml:"dir"`
	PresignTTLSeconds int    `toml:"presign_ttl_seconds"`
}

// Queue locates the Kafka intake topic.
type Queue struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

// Notify configures the outbound event sinks. An empty value disables the
// corresponding sink.
type Notify struct {
	WebhookURL     string `toml:"webhook_url"`
	RedisAddr      string `toml:"redis_addr"`
	RedisChannel   string `toml:"redis_channel"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// API configures the operational HTTP endpoints. An empty bind disables
// them.
type API struct {
	Bind string `toml:"bind"`
}

// Log configures output level and format.
type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Config carries every setting of one vodforge process.
type Config struct {
	Worker  Worker  `toml:"worker"`
	FFmpeg  FFmpeg  `toml:"ffmpeg"`
	Storage Storage `toml:"storage"`
	Queue   Queue   `toml:"queue"`
	Notify  Notify  `toml:"notify"`
	API     API     `toml:"api"`
	Log     Log     `toml:"log"`
}

// Default returns a Config with working defaults for a local
// directory-backed worker against a localhost broker.
func Default() Config {
	return Config{
		Worker: Worker{
			StateDir:          defaultStateDir,
			Concurrency:       defaultConcurrency,
			JobTimeoutSeconds: defaultJobTimeoutSecs,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:   "ffmpeg",
			FFprobeBinary:  "ffprobe",
			SegmentSeconds: defaultSegmentSecs,
		},
		Storage: Storage{
			Backend:           BackendDir,
			Dir:               defaultOutputDir,
			PresignTTLSeconds: defaultPresignTTLSecs,
		},
		Queue: Queue{
			Brokers: []string{"localhost:9092"},
			Topic:   defaultTopic,
			GroupID: defaultGroupID,
		},
		Notify: Notify{
			RedisChannel:   defaultRedisChannel,
			TimeoutSeconds: defaultNotifyTimeout,
		},
		API: API{Bind: defaultAPIBind},
		Log: Log{Level: defaultLogLevel},
	}
}

// DefaultConfigPath returns the expanded default configuration location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vodforge/config.toml")
}

// Load locates, parses and validates a configuration file. A missing file
// is not an error: defaults apply and exists reports false. Path fields in
// the result are expanded and absolute.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, errors.Wrap(err, errors.ConfigError, "Failed to open the configuration file", errors.ErrConfigLoad)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, errors.Wrap(err, errors.ConfigError, "Failed to parse the configuration file", errors.ErrConfigLoad)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, errors.Wrap(err, errors.ConfigError, "Failed to stat the configuration file", errors.ErrConfigLoad)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vodforge.toml")
	if err != nil {
		return "", false, errors.Wrap(err, errors.ConfigError, "Failed to resolve the project configuration path", errors.ErrConfigLoad)
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Worker.StateDir, err = expandPath(c.Worker.StateDir); err != nil {
		return errors.Wrap(err, errors.ConfigError, "worker.state_dir is not a usable path", errors.ErrConfigLoad)
	}
	if c.FFmpeg.WorkDir != "" {
		if c.FFmpeg.WorkDir, err = expandPath(c.FFmpeg.WorkDir); err != nil {
			return errors.Wrap(err, errors.ConfigError, "ffmpeg.work_dir is not a usable path", errors.ErrConfigLoad)
		}
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Dir != "" {
		if c.Storage.Dir, err = expandPath(c.Storage.Dir); err != nil {
			return errors.Wrap(err, errors.ConfigError, "storage.dir is not a usable path", errors.ErrConfigLoad)
		}
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.Bucket == "" {
			return invalid("storage.bucket is required for the s3 backend")
		}
	case BackendDir:
		if c.Storage.Dir == "" {
			return invalid("storage.dir is required for the dir backend")
		}
	default:
		return invalid(fmt.Sprintf("storage.backend must be %q or %q", BackendS3, BackendDir))
	}

	if c.Worker.Concurrency < 1 {
		return invalid("worker.concurrency must be at least 1")
	}
	if c.Worker.JobTimeoutSeconds < 1 {
		return invalid("worker.job_timeout_seconds must be at least 1")
	}
	if c.FFmpeg.SegmentSeconds < 1 {
		return invalid("ffmpeg.segment_seconds must be at least 1")
	}
	if c.Storage.PresignTTLSeconds < 1 {
		return invalid("storage.presign_ttl_seconds must be at least 1")
	}
	if len(c.Queue.Brokers) == 0 || c.Queue.Topic == "" || c.Queue.GroupID == "" {
		return invalid("queue.brokers, queue.topic and queue.group_id are required")
	}
	if c.Notify.TimeoutSeconds < 0 {
		return invalid("notify.timeout_seconds cannot be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of debug, info, warn, error")
	}
	return nil
}

func invalid(detail string) error {
	return errors.New(errors.ConfigError, "Configuration is invalid", detail, errors.ErrConfigInvalid)
}

// JobTimeout returns the per-job deadline.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Worker.JobTimeoutSeconds) * time.Second
}

// PresignTTL returns the lifetime of presigned input URLs.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.Storage.PresignTTLSeconds) * time.Second
}

// NotifyTimeout returns the per-dispatch timeout for notifications.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// JobStorePath returns the sqlite file inside the state directory.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.Worker.StateDir, "jobs.db")
}

// EnsureDirectories creates the directories the worker writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Worker.StateDir}
	if c.FFmpeg.WorkDir != "" {
		dirs = append(dirs, c.FFmpeg.WorkDir)
	}
	if c.Storage.Backend == BackendDir {
		dirs = append(dirs, c.Storage.Dir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ConfigError, "Failed to create a configured directory", errors.ErrConfigLoad)
		}
	}
	return nil
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ConfigError, "Failed to create the configuration directory", errors.ErrConfigLoad)
		}
	}
	if _, err := os.Stat(expanded); err == nil {
		return errors.New(errors.ConfigError, "A configuration file already exists", expanded, errors.ErrConfigLoad)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ConfigError, "Failed to stat the configuration path", errors.ErrConfigLoad)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return errors.Wrap(err, errors.ConfigError, "Failed to write the sample configuration", errors.ErrConfigLoad)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, errors.ConfigError, "Failed to resolve the home directory", errors.ErrConfigLoad)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", errors.Wrap(err, errors.ConfigError, "Failed to resolve an absolute path", errors.ErrConfigLoad)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules to commands that
// take path arguments.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
