package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultLivePath is the live endpoint path used when the API base is
// a relative path.
const DefaultLivePath = "/live"

// EndpointURL derives the websocket endpoint from the configured API
// base. An absolute http(s) base keeps its host and swaps scheme and
// path (http→ws, https→wss); a relative base combines the page's
// current host with the live path.
func EndpointURL(base, pageHost, livePath string) (string, error) {
	if livePath == "" {
		livePath = DefaultLivePath
	}
	if !strings.HasPrefix(livePath, "/") {
		livePath = "/" + livePath
	}

	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		u, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parsing base URL: %w", err)
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = livePath
		u.RawQuery = ""
		return u.String(), nil
	}

	if pageHost == "" {
		return "", fmt.Errorf("relative base %q needs a page host", base)
	}
	return "ws://" + pageHost + livePath, nil
}
