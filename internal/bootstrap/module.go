package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"iatbridge/internal/config"
	"iatbridge/internal/logging"
	"iatbridge/internal/server"
)

func ProvideEchoServer(s Services) *echo.Echo {
	opts := server.Options{
		AllowOrigins:   s.Config.Server.AllowOrigins,
		UploadDir:      s.Config.Server.UploadDir,
		MaxUploadBytes: s.Config.Server.MaxUploadBytes,
	}
	e := server.NewEchoServer(opts, s.Metrics, s.Logger)
	server.NewHandler(s.Streaming, s.Sentence, opts, s.Logger).RegisterRoutes(e)
	return e
}

func StartServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, e *echo.Echo, s Services) {
	cfg := s.Config.Server
	logger := logging.NewComponentLogger(s.Logger, "http")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				var err error
				if cfg.TLSEnabled() {
					err = e.StartTLS(cfg.Address(), cfg.TLSCertFile, cfg.TLSKeyFile)
				} else {
					err = e.Start(cfg.Address())
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server_failed", slog.String("error", err.Error()))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			logger.Info("server_listening",
				slog.String("addr", cfg.Address()),
				slog.Bool("tls", cfg.TLSEnabled()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(Build, ProvideEchoServer),
	fx.Invoke(StartServer),
)

// NewApp assembles the fx application for a loaded configuration.
func NewApp(cfg config.Config, logger *slog.Logger, extra ...fx.Option) *fx.App {
	options := []fx.Option{
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logging.NewComponentLogger(l, "fx")}
		}),
		ServerModule,
	}
	return fx.New(append(options, extra...)...)
}
