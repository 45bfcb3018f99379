package transport

import "net/url"

func parseProxyURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
