package bootstrap

import (
	"errors"
	"log/slog"

	"iatbridge/internal/audio"
	"iatbridge/internal/config"
	"iatbridge/internal/metrics"
	"iatbridge/internal/providers/tencent"
	"iatbridge/internal/providers/xfyun"
	"iatbridge/internal/transport/websocket"
	"iatbridge/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Streaming *usecase.SessionController
	Sentence  *tencent.Client
}

// Build wires all backend dependencies for the current runtime.
func Build(cfg config.Config, logger *slog.Logger) (Services, error) {
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		return Services{}, errors.New("tls requires both a certificate and a key file")
	}
	if logger == nil {
		logger = slog.Default()
	}

	source := audio.NewSource(cfg.Audio.FFMPEGCommand)
	m := metrics.NewMetrics()

	protocol := xfyun.NewProtocol(xfyun.Config{
		AppID:             cfg.Xfyun.AppID,
		APIKey:            cfg.Xfyun.APIKey,
		APISecret:         cfg.Xfyun.APISecret,
		URL:               cfg.Xfyun.URL,
		Language:          cfg.Xfyun.Language,
		Domain:            cfg.Xfyun.Domain,
		Accent:            cfg.Xfyun.Accent,
		DynamicCorrection: cfg.Xfyun.DynamicCorrection,
		SampleRate:        cfg.Xfyun.SampleRate,
	})

	streaming := usecase.NewSessionController(
		source,
		websocket.NewDialer(0),
		protocol,
		m,
		logger,
		usecase.Config{
			ChunkSize:      cfg.Session.ChunkSize,
			FrameInterval:  cfg.Session.FrameInterval,
			DrainTimeout:   cfg.Session.DrainTimeout,
			SessionTimeout: cfg.Session.SessionTimeout,
		},
	)

	sentence := tencent.NewClient(tencent.Config{
		SecretID:   cfg.Tencent.SecretID,
		SecretKey:  cfg.Tencent.SecretKey,
		Endpoint:   cfg.Tencent.Endpoint,
		Region:     cfg.Tencent.Region,
		EngineType: cfg.Tencent.EngineType,
		Timeout:    cfg.Tencent.Timeout,
	}, source, logger)

	return Services{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Streaming: streaming,
		Sentence:  sentence,
	}, nil
}
