package telegram

import (
	"fmt"
	"net/url"

	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/net/proxy"
)

// NewResolver returns the datacenter resolver for every client. An empty
// proxyURL connects directly; otherwise it must be a socks5:// url.
func NewResolver(proxyURL string) (dcs.Resolver, error) {
	if proxyURL == "" {
		return dcs.DefaultResolver(), nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme %q, want socks5", u.Scheme)
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create proxy dialer: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy dialer for %s does not support contexts", u.Host)
	}
	return dcs.Plain(dcs.PlainOptions{Dial: ctxDialer.DialContext}), nil
}
