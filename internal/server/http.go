package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iatbridge/internal/errorsx"
	"iatbridge/internal/logging"
	"iatbridge/internal/metrics"
	"iatbridge/internal/ports"
)

const uploadField = "audio"

type Options struct {
	AllowOrigins   []string
	UploadDir      string
	MaxUploadBytes int64
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type textResponse struct {
	Text string `json:"text"`
}

// Handler serves recognition requests for uploaded audio files.
type Handler struct {
	xfyun   ports.Recognizer
	tencent ports.Recognizer
	opts    Options
	logger  *slog.Logger
}

func NewHandler(xfyun, tencent ports.Recognizer, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		xfyun:   xfyun,
		tencent: tencent,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "http"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/recognize", h.recognizeWith(h.xfyun))
	e.POST("/recognize-tencent", h.recognizeWith(h.tencent))
	e.GET("/healthz", h.Health)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recognizeWith(recognizer ports.Recognizer) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.opts.MaxUploadBytes > 0 {
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.opts.MaxUploadBytes)
		}

		path, err := h.saveUpload(c)
		if err != nil {
			h.logger.Warn("upload_rejected", slog.String("error", err.Error()))
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		}
		defer func() {
			if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				h.logger.Warn("upload_cleanup_failed", slog.String("path", path), slog.String("error", removeErr.Error()))
			}
		}()

		transcript, err := recognizer.Recognize(c.Request().Context(), path)
		if err != nil {
			h.logger.Error("recognition_failed",
				slog.String("route", c.Path()),
				slog.String("reason", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			return c.JSON(http.StatusInternalServerError, errorResponse{
				Error: err.Error(),
				Code:  string(errorsx.Reason(err)),
			})
		}
		return c.JSON(http.StatusOK, textResponse{Text: transcript.Text})
	}
}

// saveUpload copies the multipart audio field into a temporary file owned by the request.
func (h *Handler) saveUpload(c echo.Context) (string, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		return "", fmt.Errorf("missing %q upload: %w", uploadField, err)
	}
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.opts.UploadDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return dst.Name(), nil
}

// NewEchoServer builds the HTTP server with CORS, recovery, request logging and metrics.
func NewEchoServer(opts Options, m *metrics.Metrics, logger *slog.Logger) *echo.Echo {
	logger = logging.NewComponentLogger(logger, "http")
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			"X-Requested-With",
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))
	if m != nil {
		e.Use(metricsMiddleware(m))
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
	return e
}

func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			status := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(route, status, time.Since(started))
			return err
		}
	}
}
