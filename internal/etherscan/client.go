package etherscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"argus/internal"
)

// ErrNotVerified means the explorer has no verified source for the address.
var ErrNotVerified = errors.New("no verified source for contract")

type Config struct {
	APIKey  string
	BaseURL string
	Proxy   string
	ChainID int
}

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Result  interface{} `json:"result"`
}

type ContractInfo struct {
	SourceCode           string `json:"SourceCode"`
	ABI                  string `json:"ABI"`
	ContractName         string `json:"ContractName"`
	CompilerVersion      string `json:"CompilerVersion"`
	OptimizationUsed     string `json:"OptimizationUsed"`
	Runs                 string `json:"Runs"`
	ConstructorArguments string `json:"ConstructorArguments"`
	EVMVersion           string `json:"EVMVersion"`
	Library              string `json:"Library"`
	LicenseType          string `json:"LicenseType"`
	Proxy                string `json:"Proxy"`
	Implementation       string `json:"Implementation"`
	SwarmSource          string `json:"SwarmSource"`
}

// GetVerifiedSource fetches the verified source record for an address.
// The SourceCode payload is returned exactly as the explorer sent it; the
// sources package is responsible for decoding multi-file JSON payloads.
func GetVerifiedSource(address string, config Config) (*ContractInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("empty address passed to GetVerifiedSource")
	}

	base := strings.TrimRight(config.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse explorer BaseURL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/api") {
		u.Path = strings.TrimRight(u.Path, "/") + "/api"
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", strings.TrimSpace(config.APIKey))
	if config.ChainID > 0 {
		q.Set("chainid", fmt.Sprintf("%d", config.ChainID))
	}

	u.RawQuery = q.Encode()
	finalURL := u.String()

	client, err := internal.CreateProxyHTTPClient(config.Proxy, 20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer HTTP client: %w", err)
	}

	var lastErr error
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, _ := http.NewRequest("GET", finalURL, nil)
		req.Header.Set("User-Agent", "Argus/1.0 (+https://github.com/)")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if isTemporaryNetErr(err) && attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to request explorer API: %w (url=%s)", err, finalURL)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if (readErr == io.ErrUnexpectedEOF || isTemporaryNetErr(readErr)) && attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to read explorer response: %w (url=%s)", readErr, finalURL)
		}

		if resp.StatusCode != http.StatusOK {
			snippet := string(body)
			if len(snippet) > 1024 {
				snippet = snippet[:1024]
			}
			return nil, fmt.Errorf("explorer returned non-200 status: %d, body: %s", resp.StatusCode, snippet)
		}

		info, err := ParseSourceResponse(body)
		if err != nil {
			if errors.Is(err, ErrNotVerified) {
				return nil, err
			}
			lastErr = err
			if attempt < maxAttempts {
				time.Sleep(time.Duration(attempt) * 300 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("%w (url=%s)", err, finalURL)
		}
		return info, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("request to explorer failed multiple times: %w (url=%s)", lastErr, finalURL)
	}
	return nil, fmt.Errorf("request to explorer failed with unknown error (url=%s)", finalURL)
}

// ParseSourceResponse decodes a getsourcecode response body. A status!=1
// response, an empty result list, or an empty SourceCode all map to
// ErrNotVerified: the explorer answered, there is just nothing to analyze.
func ParseSourceResponse(body []byte) (*ContractInfo, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse explorer JSON: %w", err)
	}

	if apiResp.Status != "1" {
		return nil, fmt.Errorf("%w: %s", ErrNotVerified, apiResp.Message)
	}

	switch result := apiResp.Result.(type) {
	case []interface{}:
		if len(result) == 0 {
			return nil, ErrNotVerified
		}
		var infos []ContractInfo
		bs, _ := json.Marshal(result)
		if err := json.Unmarshal(bs, &infos); err != nil {
			return nil, fmt.Errorf("failed to decode explorer result: %w", err)
		}
		if len(infos) == 0 || strings.TrimSpace(infos[0].SourceCode) == "" {
			return nil, ErrNotVerified
		}
		return &infos[0], nil
	case string:
		return nil, fmt.Errorf("explorer returned error string: %s", result)
	default:
		return nil, fmt.Errorf("unknown explorer response format: %T", result)
	}
}

func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout() || ne.Temporary()
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return true
	}
	return false
}
