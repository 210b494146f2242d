package transport

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Jar is the cookie jar shared by all requests in a test run.
type Jar struct {
	*cookiejar.Jar
}

// NewJar creates an empty Jar that applies the public suffix list.
func NewJar() *Jar {
	// cookiejar.New only fails if given invalid options, which these are not
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &Jar{jar}
}

// CookieString returns the cookies that would be sent to rawURL, in the form of a Cookie header
// value ("name1=value1; name2=value2"). It returns an empty string if there are none.
func (j *Jar) CookieString(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	cookies := j.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	return strings.Join(parts, "; "), nil
}
