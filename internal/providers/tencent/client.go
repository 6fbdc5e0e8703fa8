package tencent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
	"iatbridge/internal/logging"
	"iatbridge/internal/ports"
)

const (
	defaultEndpoint   = "https://asr.tencentcloudapi.com"
	defaultRegion     = "ap-guangzhou"
	defaultEngineType = "16k_zh"
	action            = "SentenceRecognition"
	apiVersion        = "2019-06-14"
)

type Config struct {
	SecretID   string
	SecretKey  string
	Endpoint   string
	Region     string
	EngineType string
	Timeout    time.Duration
}

// Client runs one-shot sentence recognition against the Tencent Cloud ASR API.
type Client struct {
	cfg        Config
	audio      ports.AudioSource
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg Config, audio ports.AudioSource, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.EngineType == "" {
		cfg.EngineType = defaultEngineType
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		audio:      audio,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "tencent"),
		now:        time.Now,
	}
}

type sentenceRequest struct {
	ProjectID      int    `json:"ProjectId"`
	SubServiceType int    `json:"SubServiceType"`
	EngSerViceType string `json:"EngSerViceType"`
	SourceType     int    `json:"SourceType"`
	VoiceFormat    string `json:"VoiceFormat"`
	UsrAudioKey    string `json:"UsrAudioKey"`
	Data           string `json:"Data"`
	DataLen        int    `json:"DataLen"`
}

type sentenceResponse struct {
	Response struct {
		Result    *string `json:"Result"`
		RequestID string  `json:"RequestId"`
		Error     *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"Response"`
}

// Recognize implements ports.Recognizer.
func (c *Client) Recognize(ctx context.Context, path string) (domain.Transcript, error) {
	if strings.TrimSpace(c.cfg.SecretID) == "" || strings.TrimSpace(c.cfg.SecretKey) == "" {
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("tencent secret id/key: %w", errorsx.ErrMissingCredentials), errorsx.ReasonConfig)
	}
	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("invalid tencent endpoint %q", c.cfg.Endpoint), errorsx.ReasonConfig)
	}

	audio, err := c.readAudio(ctx, path)
	if err != nil {
		return domain.Transcript{}, err
	}

	encoded := base64.StdEncoding.EncodeToString(audio)
	payload, err := json.Marshal(sentenceRequest{
		SubServiceType: 2,
		EngSerViceType: c.cfg.EngineType,
		SourceType:     1,
		VoiceFormat:    "pcm",
		UsrAudioKey:    "iatbridge",
		Data:           encoded,
		DataLen:        len(encoded),
	})
	if err != nil {
		return domain.Transcript{}, errorsx.Wrap(err, errorsx.ReasonEncode)
	}

	now := c.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return domain.Transcript{}, errorsx.Wrap(err, errorsx.ReasonTransport)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-TC-Action", action)
	req.Header.Set("X-TC-Version", apiVersion)
	req.Header.Set("X-TC-Timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("X-TC-Region", c.cfg.Region)
	req.Header.Set("Authorization", Authorization(c.cfg.SecretID, c.cfg.SecretKey, endpoint.Host, now, payload))

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("tencent request canceled: %w", ctx.Err()), errorsx.ReasonCanceled)
		}
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("tencent request failed: %w", err), errorsx.ReasonTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("read tencent response: %w", err), errorsx.ReasonTransport)
	}

	var decoded sentenceResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("tencent http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), errorsx.ReasonTransport)
		}
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("decode tencent response: %w", err), errorsx.ReasonProtocol)
	}

	result := decoded.Response
	if result.Error != nil {
		return domain.Transcript{}, errorsx.NewProtocolError(0, result.Error.Code+": "+result.Error.Message, result.RequestID)
	}
	if result.Result == nil {
		return domain.Transcript{}, errorsx.NewProtocolError(0, "response carries no result", result.RequestID)
	}

	c.logger.Info("sentence_recognized",
		slog.String("request_id", result.RequestID),
		slog.Int("audio_bytes", len(audio)),
		slog.Duration("elapsed", time.Since(started)))
	return domain.Transcript{Text: *result.Result, SID: result.RequestID}, nil
}

func (c *Client) readAudio(ctx context.Context, path string) ([]byte, error) {
	source, err := c.audio.Open(ctx, path)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("open audio %q: %w", path, err), errorsx.ReasonAudioRead)
	}
	defer source.Close()

	data, err := io.ReadAll(source)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read audio %q: %w", path, err), errorsx.ReasonAudioRead)
	}
	return data, nil
}
