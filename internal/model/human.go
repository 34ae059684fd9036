// human readable and writable values
// which can be used inside config file
package model

import (
	"errors"
	"net/url"
	"os"
)

// ParseURL expands environment variables in s and parses it as an absolute URL.
func ParseURL(s string) (*url.URL, error) {
	parsed, err := url.Parse(os.ExpandEnv(s))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("please define the url with a scheme and a host, e.g. `https://example.com`")
	}
	return parsed, nil
}
