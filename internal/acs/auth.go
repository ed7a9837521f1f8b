package acs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConnectionString is returned when the connection string lacks an
// endpoint or a usable access key.
var ErrInvalidConnectionString = errors.New("acs: invalid connection string")

// Credentials are the parsed parts of a connection string.
type Credentials struct {
	Endpoint *url.URL
	Key      []byte
}

// ParseConnectionString parses "endpoint=https://...;accesskey=base64".
// Keys are matched case-insensitively.
func ParseConnectionString(s string) (Credentials, error) {
	var endpoint, key string
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = v
		case "accesskey":
			key = v
		}
	}
	if endpoint == "" || key == "" {
		return Credentials{}, fmt.Errorf("%w: endpoint and accesskey are required", ErrInvalidConnectionString)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return Credentials{}, fmt.Errorf("%w: bad endpoint %q", ErrInvalidConnectionString, endpoint)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: access key is not base64", ErrInvalidConnectionString)
	}
	return Credentials{Endpoint: u, Key: decoded}, nil
}

// signRequest adds the HMAC-SHA256 authentication headers. The signature
// covers the method, path with query, date, host and body hash.
func signRequest(req *http.Request, key, body []byte, now time.Time) {
	hash := sha256.Sum256(body)
	contentHash := base64.StdEncoding.EncodeToString(hash[:])
	date := now.UTC().Format(http.TimeFormat)
	host := req.URL.Host

	stringToSign := fmt.Sprintf("%s\n%s\n%s;%s;%s",
		req.Method, req.URL.RequestURI(), date, host, contentHash)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
