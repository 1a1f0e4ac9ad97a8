// Copyright (c) 2025 BVK Chaitanya

package coinex

import (
	"net/url"
	"time"
)

var (
	RestURL = url.URL{
		Scheme: "https",
		Host:   "api.coinex.com",
		Path:   "/v2",
	}

	SpotWebsocketURL = url.URL{
		Scheme: "wss",
		Host:   "socket.coinex.com",
		Path:   "/v2/spot",
	}

	FuturesWebsocketURL = url.URL{
		Scheme: "wss",
		Host:   "socket.coinex.com",
		Path:   "/v2/futures",
	}
)

// Credentials holds an api key pair.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type Options struct {
	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// WebsocketPingInterval holds ping-pong interval for the websockets.
	WebsocketPingInterval time.Duration

	// MaxRequestsPerSecond throttles outgoing REST calls.
	MaxRequestsPerSecond float64

	// Futures selects the derivatives account endpoints and the futures
	// websocket feed.
	Futures bool
}

func (v *Options) setDefaults() {
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.WebsocketPingInterval == 0 {
		v.WebsocketPingInterval = 30 * time.Second
	}
	if v.MaxRequestsPerSecond == 0 {
		v.MaxRequestsPerSecond = 10
	}
}

// Check validates the options.
func (v *Options) Check() error {
	return nil
}

func (v *Options) websocketURL() *url.URL {
	if v.Futures {
		return &FuturesWebsocketURL
	}
	return &SpotWebsocketURL
}
