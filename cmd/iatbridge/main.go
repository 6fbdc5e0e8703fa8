package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dimiro1/banner"

	"iatbridge/internal/bootstrap"
	"iatbridge/internal/config"
	"iatbridge/internal/logging"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", os.Getenv("IATBRIDGE_CONFIG"), "optional config file (yaml, toml or json)")
	quiet := flag.Bool("quiet", false, "skip the startup banner")
	flag.Parse()

	if !*quiet {
		tpl := "{{ .Title \"iatbridge\" \"\" 0 }}\nVersion: " + version + "\n"
		banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.InitLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.Xfyun.AppID == "" || cfg.Xfyun.APIKey == "" || cfg.Xfyun.APISecret == "" {
		logger.Warn("xfyun_credentials_missing", slog.String("hint", "set XUNFEI_APP_ID, XUNFEI_API_KEY and XUNFEI_API_SECRET"))
	}

	bootstrap.NewApp(cfg, logger).Run()
}
