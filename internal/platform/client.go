package platform

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const clientTimeout = 30 * time.Second

var (
	clientOnce   sync.Once
	sharedClient *http.Client
)

// SharedHTTPClient returns the process-wide HTTP client used by the
// platform adapters, so Telegram and Bale traffic share one connection
// pool. Bot API hosts are contacted on every relayed message, so keeping
// connections warm matters.
func SharedHTTPClient() *http.Client {
	clientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: clientTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		}
		sharedClient = &http.Client{
			Timeout:   clientTimeout,
			Transport: transport,
		}
	})
	return sharedClient
}
