package livetail

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StreamPath is appended to a base URL when no explicit websocket URL is set.
const StreamPath = "/api/v1/logs/stream"

// ErrNoURL is returned when neither a websocket URL nor a base URL is configured.
var ErrNoURL = errors.New("livetail: no websocket or base url configured")

// BuildURL returns the websocket URL for a subscription.
func BuildURL(websocketURL, baseURL, tenant string, q Query) (string, error) {
	raw := websocketURL
	if raw == "" {
		if baseURL == "" {
			return "", ErrNoURL
		}
		base := strings.TrimRight(baseURL, "/")
		if len(base) >= 4 && strings.EqualFold(base[:4], "http") {
			base = "ws" + base[4:]
		}
		raw = base + StreamPath
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("livetail: invalid url %q: %w", raw, err)
	}
	params := u.Query()
	if q.Query != "" {
		params.Set("query", q.Query)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if tenant != "" {
		params.Set("tenant", tenant)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}
