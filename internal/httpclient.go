package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type ProxyConfig struct {
	URL     string
	Timeout time.Duration
}

type ProxyManager struct {
	config *ProxyConfig
}

var (
	httpClientCacheMu sync.Mutex
	httpClientCache   = map[string]*http.Client{}
)

func NewProxyManager(proxyURL string, timeout time.Duration) (*ProxyManager, error) {
	if strings.TrimSpace(proxyURL) == "" {
		return &ProxyManager{config: nil}, nil
	}

	_, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	return &ProxyManager{
		config: &ProxyConfig{
			URL:     strings.TrimSpace(proxyURL),
			Timeout: timeout,
		},
	}, nil
}

func (pm *ProxyManager) CreateHTTPClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if pm.config != nil {
		proxyURL, _ := url.Parse(pm.config.URL)
		client.Transport = &http.Transport{
			Proxy:               http.ProxyURL(proxyURL),
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		}
	}

	return client
}

func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil // empty means no proxy
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}

	return nil
}

// CreateProxyHTTPClient returns a cached client for the proxy/timeout pair.
// The cache is reset once it holds 32 entries.
func CreateProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	key := strings.TrimSpace(proxyURL) + "|" + timeout.String()
	httpClientCacheMu.Lock()
	if cached := httpClientCache[key]; cached != nil {
		httpClientCacheMu.Unlock()
		return cached, nil
	}
	httpClientCacheMu.Unlock()

	pm, err := NewProxyManager(proxyURL, timeout)
	if err != nil {
		return nil, err
	}

	client := pm.CreateHTTPClient(timeout)

	httpClientCacheMu.Lock()
	if len(httpClientCache) >= 32 {
		httpClientCache = map[string]*http.Client{}
	}
	httpClientCache[key] = client
	httpClientCacheMu.Unlock()

	return client, nil
}
