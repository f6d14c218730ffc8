package counter

import (
	"net/url"
	"regexp"
	"strings"
)

// MaxURLLength is the longest accepted URL, in bytes.
const MaxURLLength = 1000

var elementPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// Validate checks a submitted URL and element name without doing any I/O and
// returns the normalized target. Rules short-circuit on the first failure.
func Validate(rawURL, element string) (Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	element = strings.TrimSpace(element)

	if rawURL == "" || element == "" {
		return Target{}, invalid(ReasonMissingField)
	}
	u, ok := parseStrictURL(rawURL)
	if !ok {
		return Target{}, invalid(ReasonInvalidURLFormat)
	}
	// url.Parse lower-cases the scheme, so compare against the raw text.
	scheme := rawURL[:len(u.Scheme)]
	if scheme != "http" && scheme != "https" {
		return Target{}, invalid(ReasonUnsupportedScheme)
	}
	if !elementPattern.MatchString(element) {
		return Target{}, invalid(ReasonInvalidElementName)
	}
	if len(rawURL) > MaxURLLength {
		return Target{}, invalid(ReasonURLTooLong)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, invalid(ReasonInvalidDomain)
	}

	return Target{
		URL:     rawURL,
		Element: strings.ToLower(element),
		Domain:  host,
	}, nil
}

func parseStrictURL(raw string) (*url.URL, bool) {
	if strings.ContainsAny(raw, " \t\r\n") {
		return nil, false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme == "" {
		return nil, false
	}
	if u.Host == "" && u.Opaque == "" {
		return nil, false
	}
	// http and https URLs must carry a host.
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return nil, false
	}
	return u, true
}
