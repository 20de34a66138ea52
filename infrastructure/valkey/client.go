package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultConnectTimeout = 5 * time.Second

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client is the shared Valkey connection: cache entries live under
// "<prefix>cache:" and pub/sub channels under "<prefix><channel>".
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings within cfg.ConnectTimeout. Close it on
// shutdown.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.Address, err)
	}

	return &Client{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the client prefix: Key("cache", "media_g1") is
// "azgallery:cache:media_g1".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil reports a Valkey nil reply (missing key).
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}

// Publish sends message on the prefixed channel.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	cmd := c.inner.B().Publish().Channel(c.Key(channel)).Message(message).Build()
	return c.inner.Do(ctx, cmd).Error()
}

// Subscribe blocks delivering messages of the prefixed channel to fn until
// ctx is cancelled or the connection fails.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(message string)) error {
	cmd := c.inner.B().Subscribe().Channel(c.Key(channel)).Build()
	return c.inner.Receive(ctx, cmd, func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
}
