package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowedIP(t *testing.T) {
	allowed := []string{"185.71.76.0/27", "not-a-cidr", "2a02:5180::/32"}

	assert.True(t, IsAllowedIP("185.71.76.10", allowed))
	assert.True(t, IsAllowedIP("2a02:5180::1", allowed))
	assert.False(t, IsAllowedIP("185.71.76.40", allowed))
	assert.False(t, IsAllowedIP("garbage", allowed))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "10.0.0.5:4711"
	r.Header.Set("X-Forwarded-For", "185.71.76.1, 10.0.0.1")

	assert.Equal(t, "10.0.0.5", ClientIP(r, false), "headers ignored without a proxy")
	assert.Equal(t, "185.71.76.1", ClientIP(r, true))

	r.Header.Set("X-Real-IP", "77.75.153.2")
	assert.Equal(t, "77.75.153.2", ClientIP(r, true))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(r, true))
}
