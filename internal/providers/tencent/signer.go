package tencent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	algorithm     = "TC3-HMAC-SHA256"
	service       = "asr"
	contentType   = "application/json; charset=utf-8"
	signedHeaders = "content-type;host"
)

// Authorization returns the TC3-HMAC-SHA256 Authorization header for a POST of
// payload to host at timestamp.
func Authorization(secretID, secretKey, host string, timestamp time.Time, payload []byte) string {
	date := timestamp.UTC().Format("2006-01-02")
	scope := date + "/" + service + "/tc3_request"

	canonicalRequest := strings.Join([]string{
		"POST",
		"/",
		"",
		"content-type:" + contentType + "\nhost:" + host + "\n",
		signedHeaders,
		sha256Hex(payload),
	}, "\n")
	stringToSign := strings.Join([]string{
		algorithm,
		fmt.Sprintf("%d", timestamp.Unix()),
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+secretKey), date)
	secretService := hmacSHA256(secretDate, service)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, secretID, scope, signedHeaders, signature)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
