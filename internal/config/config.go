package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"iatbridge/internal/errorsx"
)

const (
	defaultChunkSize    = 1280
	defaultSampleRate   = 16000
	defaultPort         = 3000
	defaultDrainTimeout = 5 * time.Second
	defaultTencentLimit = 10 * time.Second
)

// Config stores runtime configuration for the bridge.
type Config struct {
	Xfyun     XfyunConfig   `mapstructure:"xfyun"`
	Tencent   TencentConfig `mapstructure:"tencent"`
	Session   SessionConfig `mapstructure:"session"`
	Audio     AudioConfig   `mapstructure:"audio"`
	Server    ServerConfig  `mapstructure:"server"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

type XfyunConfig struct {
	AppID             string `mapstructure:"app_id"`
	APIKey            string `mapstructure:"api_key"`
	APISecret         string `mapstructure:"api_secret"`
	URL               string `mapstructure:"url"`
	Language          string `mapstructure:"language"`
	Domain            string `mapstructure:"domain"`
	Accent            string `mapstructure:"accent"`
	DynamicCorrection bool   `mapstructure:"dynamic_correction"`
	SampleRate        int    `mapstructure:"sample_rate"`
}

type TencentConfig struct {
	SecretID   string        `mapstructure:"secret_id"`
	SecretKey  string        `mapstructure:"secret_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	Region     string        `mapstructure:"region"`
	EngineType string        `mapstructure:"engine_type"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

type AudioConfig struct {
	// FFMPEGCommand enables decoding uploads through ffmpeg; empty streams files as raw PCM.
	FFMPEGCommand string `mapstructure:"ffmpeg_command"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	TLSCertFile    string   `mapstructure:"tls_cert_file"`
	TLSKeyFile     string   `mapstructure:"tls_key_file"`
	AllowOrigins   []string `mapstructure:"allow_origins"`
	UploadDir      string   `mapstructure:"upload_dir"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// TLSEnabled reports whether both halves of the key pair are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// Address is the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// envAliases maps config keys to the environment variables accepted for them, in priority order.
var envAliases = map[string][]string{
	"xfyun.app_id":       {"XUNFEI_APP_ID", "IATBRIDGE_XFYUN_APP_ID"},
	"xfyun.api_key":      {"XUNFEI_API_KEY", "IATBRIDGE_XFYUN_API_KEY"},
	"xfyun.api_secret":   {"XUNFEI_API_SECRET", "IATBRIDGE_XFYUN_API_SECRET"},
	"tencent.secret_id":  {"TENCENT_SECRET_ID", "IATBRIDGE_TENCENT_SECRET_ID"},
	"tencent.secret_key": {"TENCENT_SECRET_KEY", "IATBRIDGE_TENCENT_SECRET_KEY"},
	"server.port":        {"PORT", "IATBRIDGE_SERVER_PORT"},
}

// Load resolves configuration from a .env file, an optional config file at path,
// environment variables and defaults. Missing credentials are not an error here.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errorsx.Wrap(fmt.Errorf("load .env: %w", err), errorsx.ReasonConfig)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IATBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("bind env %s: %w", key, err), errorsx.ReasonConfig)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("decode config: %w", err), errorsx.ReasonConfig)
	}

	normalize(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("xfyun.app_id", "")
	v.SetDefault("xfyun.api_key", "")
	v.SetDefault("xfyun.api_secret", "")
	v.SetDefault("xfyun.url", "wss://iat-api.xfyun.cn/v2/iat")
	v.SetDefault("xfyun.language", "zh_cn")
	v.SetDefault("xfyun.domain", "iat")
	v.SetDefault("xfyun.accent", "mandarin")
	v.SetDefault("xfyun.dynamic_correction", true)
	v.SetDefault("xfyun.sample_rate", defaultSampleRate)
	v.SetDefault("tencent.secret_id", "")
	v.SetDefault("tencent.secret_key", "")
	v.SetDefault("tencent.endpoint", "https://asr.tencentcloudapi.com")
	v.SetDefault("tencent.region", "ap-guangzhou")
	v.SetDefault("tencent.engine_type", "16k_zh")
	v.SetDefault("tencent.timeout", defaultTencentLimit)
	v.SetDefault("session.chunk_size", defaultChunkSize)
	v.SetDefault("session.frame_interval", time.Duration(0))
	v.SetDefault("session.drain_timeout", defaultDrainTimeout)
	v.SetDefault("session.session_timeout", time.Duration(0))
	v.SetDefault("audio.ffmpeg_command", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.upload_dir", "")
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func normalize(cfg *Config) {
	cfg.Xfyun.AppID = strings.TrimSpace(cfg.Xfyun.AppID)
	cfg.Xfyun.APIKey = strings.TrimSpace(cfg.Xfyun.APIKey)
	cfg.Xfyun.APISecret = strings.TrimSpace(cfg.Xfyun.APISecret)
	cfg.Tencent.SecretID = strings.TrimSpace(cfg.Tencent.SecretID)
	cfg.Tencent.SecretKey = strings.TrimSpace(cfg.Tencent.SecretKey)

	if cfg.Xfyun.SampleRate != 8000 && cfg.Xfyun.SampleRate != 16000 {
		cfg.Xfyun.SampleRate = defaultSampleRate
	}
	if cfg.Session.ChunkSize <= 0 {
		cfg.Session.ChunkSize = defaultChunkSize
	}
	if cfg.Session.FrameInterval < 0 {
		cfg.Session.FrameInterval = 0
	}
	if cfg.Session.DrainTimeout <= 0 {
		cfg.Session.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Session.SessionTimeout < 0 {
		cfg.Session.SessionTimeout = 0
	}
	if cfg.Tencent.Timeout <= 0 {
		cfg.Tencent.Timeout = defaultTencentLimit
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
}
