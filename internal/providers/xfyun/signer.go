package xfyun

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"iatbridge/internal/errorsx"
)

// Signer produces authorization tokens and signed connection URLs.
type Signer struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// Sign builds the base64 authorization descriptor for host, date and request line.
// date must be the exact string sent alongside the token.
func Sign(host, date, requestLine, apiKey, apiSecret string) (string, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return "", errorsx.Wrap(fmt.Errorf("xfyun api key/secret: %w", errorsx.ErrMissingCredentials), errorsx.ReasonConfig)
	}

	origin := "host: " + host + "\ndate: " + date + "\n" + requestLine
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	descriptor := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		apiKey, signature,
	)
	return base64.StdEncoding.EncodeToString([]byte(descriptor)), nil
}

// FormatDate renders now the way the signing string expects it (RFC 1123, GMT).
func FormatDate(now time.Time) string {
	return now.UTC().Format(http.TimeFormat)
}

// ConnectURL returns BaseURL with authorization, date and host query parameters.
func (s Signer) ConnectURL(now time.Time) (string, error) {
	base, err := url.Parse(strings.TrimSpace(s.BaseURL))
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("invalid xfyun url: %w", err), errorsx.ReasonConfig)
	}
	if base.Host == "" {
		return "", errorsx.Wrap(fmt.Errorf("invalid xfyun url %q: missing host", s.BaseURL), errorsx.ReasonConfig)
	}

	path := base.Path
	if path == "" {
		path = "/"
	}
	date := FormatDate(now)
	token, err := Sign(base.Host, date, "GET "+path+" HTTP/1.1", s.APIKey, s.APISecret)
	if err != nil {
		return "", err
	}

	query := base.Query()
	query.Set("authorization", token)
	query.Set("date", date)
	query.Set("host", base.Host)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// ConnectURL signs a connection URL for a new session.
func (p *Protocol) ConnectURL(now time.Time) (string, error) {
	if strings.TrimSpace(p.cfg.AppID) == "" {
		return "", errorsx.Wrap(fmt.Errorf("xfyun app id: %w", errorsx.ErrMissingCredentials), errorsx.ReasonConfig)
	}
	return p.signer.ConnectURL(now)
}
