package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRedisURL(t *testing.T) {
	assert.True(t, isRedisURL("redis://localhost:6379"))
	assert.True(t, isRedisURL("rediss://managed.example.com:6380"))
	assert.False(t, isRedisURL("localhost:6379"))
	assert.False(t, isRedisURL("redis:99"))
	// exactly eight bytes without the scheme
	assert.False(t, isRedisURL("hostname"))
	assert.False(t, isRedisURL(""))
}
