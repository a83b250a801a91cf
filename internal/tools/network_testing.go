package tools

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/strand-ai/strand/internal/log"
)

// NewNetworkToolsForTesting creates a NetworkTools with SSRF protection
// disabled so tests can target httptest servers on loopback.
//
// SECURITY WARNING: this bypasses SSRF protection and MUST ONLY be used in
// tests. It lives in internal/ to keep it out of external reach; production
// code always goes through NewNetworkTools.
func NewNetworkToolsForTesting(cfg NetworkConfig, logger log.Logger) (*NetworkTools, error) {
	if cfg.SearchBaseURL == "" {
		return nil, fmt.Errorf("search base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	nt := &NetworkTools{
		searchBaseURL:    strings.TrimSuffix(cfg.SearchBaseURL, "/"),
		searchClient:     &http.Client{Timeout: searchTimeout},
		fetchParallelism: defaultParallelism,
		fetchDelay:       defaultFetchDelay,
		fetchTimeout:     defaultFetchTimeout,
		skipSSRFCheck:    true, // no validator: loopback targets allowed
		logger:           logger,
	}
	if cfg.FetchParallelism > 0 {
		nt.fetchParallelism = cfg.FetchParallelism
	}
	if cfg.FetchDelay > 0 {
		nt.fetchDelay = cfg.FetchDelay
	}
	if cfg.FetchTimeout > 0 {
		nt.fetchTimeout = cfg.FetchTimeout
	}
	return nt, nil
}
