package client

import (
	"sync"

	"github.com/rickgao/imlink/internal/config"
	"github.com/rickgao/imlink/internal/sdkerr"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Init creates the process-wide client. It fails if one already exists;
// call Shutdown first to replace it.
func Init(cfg config.Config, opts ...Option) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return nil, sdkerr.Configuration("client is already initialized", nil)
	}
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return c, nil
}

// Default returns the process-wide client, or nil before Init.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// Shutdown closes and forgets the process-wide client.
func Shutdown() error {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}
