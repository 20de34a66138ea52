package valkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey(t *testing.T) {
	c := &Client{keyPrefix: normalizePrefix("azgallery")}
	assert.Equal(t, "azgallery:cache:media_g1", c.Key("cache", "media_g1"))
	assert.Equal(t, "azgallery:docstore_changes", c.Key("docstore_changes"))
	assert.Equal(t, "azgallery", c.Key())

	bare := &Client{keyPrefix: normalizePrefix("")}
	assert.Equal(t, "ws_broadcast", bare.Key("ws_broadcast"))
	assert.Equal(t, "", bare.Key())
}
