package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS ClientHello to present.
type Profile string

const (
	ProfileGo      Profile = "go"
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileRandom  Profile = "random"
)

func (p Profile) helloID() (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("httpclient: unknown tls profile %q", p)
}

// Transport builds a RoundTripper presenting profile's ClientHello. The JSON
// API backends use ProfileGo; the HTML backend mimics a browser.
func Transport(p Profile, proxy func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = proxy

	if p == "" || p == ProfileGo {
		return base, nil
	}

	hello, err := p.helloID()
	if err != nil {
		return nil, err
	}

	dial := base.DialContext
	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		conn := utls.UClient(raw, &utls.Config{ServerName: host}, hello)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("httpclient: tls handshake with %s: %w", host, err)
		}
		return conn, nil
	}
	// uTLS negotiates ALPN itself; keep net/http on HTTP/1.1 over the custom conn.
	base.ForceAttemptHTTP2 = false
	return base, nil
}
