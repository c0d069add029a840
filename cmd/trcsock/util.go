package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

func contextSleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// normalizeURI accepts "host:port", "http://host:port", and the
// "http+unix://" forms understood by unixtransport.
func normalizeURI(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fmt.Errorf("URI is required")
	}

	if !strings.HasPrefix(uri, "http") {
		uri = "http://" + uri
	}

	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return "", fmt.Errorf("%s: invalid: %w", uri, err)
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}
