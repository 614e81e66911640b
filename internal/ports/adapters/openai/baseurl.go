package openai

import (
	"fmt"
	"net/url"
	"strings"
)

// Hosts accepted for the endpoint override unless the operator supplies an
// explicit allow-list. Covers the stock API and OpenRouter.
var defaultAllowedHosts = map[string]struct{}{
	"api.openai.com":    {},
	"openrouter.ai":     {},
	"api.openrouter.ai": {},
}

func normalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// ValidateBaseURL vets an OPENAI_BASE_URL override before any key is sent to
// it. Empty means the SDK default endpoint and is always valid.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)
	if baseURL == "" {
		return nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid OPENAI_BASE_URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid OPENAI_BASE_URL %q: absolute URL with host is required", baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid OPENAI_BASE_URL %q: userinfo is not allowed", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid OPENAI_BASE_URL %q: query and fragment are not allowed", baseURL)
	}

	if strings.ToLower(u.Scheme) != "https" {
		return fmt.Errorf("invalid OPENAI_BASE_URL %q: https is required", baseURL)
	}

	host := strings.ToLower(u.Hostname())
	allowed := normalizeAllowedHosts(allowedHosts)
	if _, ok := allowed[host]; !ok {
		return fmt.Errorf("invalid OPENAI_BASE_URL %q: host %q is not in OPENAI_ALLOWED_HOSTS", baseURL, host)
	}
	return nil
}

func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	if len(allowedHosts) == 0 {
		return defaultAllowedHosts
	}

	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if v == "" {
			continue
		}
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		out[v] = struct{}{}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
