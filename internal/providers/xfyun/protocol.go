package xfyun

import (
	"strings"

	"iatbridge/internal/ports"
)

const (
	defaultURL        = "wss://iat-api.xfyun.cn/v2/iat"
	defaultLanguage   = "zh_cn"
	defaultDomain     = "iat"
	defaultAccent     = "mandarin"
	defaultSampleRate = 16000
	defaultEncoding   = "raw"
)

// Config controls the iFlytek streaming dictation protocol.
type Config struct {
	AppID     string
	APIKey    string
	APISecret string
	URL       string

	Language string
	Domain   string
	Accent   string
	// DynamicCorrection asks the server for "wpgs" replace-previous partial results.
	DynamicCorrection bool

	SampleRate int
	Encoding   string
}

// Protocol implements ports.StreamProtocol for the iFlytek iat endpoint.
type Protocol struct {
	cfg    Config
	signer Signer
}

func NewProtocol(cfg Config) *Protocol {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultURL
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.Accent == "" {
		cfg.Accent = defaultAccent
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Encoding == "" {
		cfg.Encoding = defaultEncoding
	}
	return &Protocol{
		cfg: cfg,
		signer: Signer{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.URL,
		},
	}
}

var _ ports.StreamProtocol = (*Protocol)(nil)
