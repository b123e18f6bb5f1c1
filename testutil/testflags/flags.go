package testflags

import (
	"os"
	"testing"
)

// RedisAddr returns the address of an external redis server for integration
// tests, skipping the test when none is configured.
func RedisAddr(t *testing.T) string {
	addr, ok := os.LookupEnv("PTSTREAM_TEST_REDIS_ADDR")
	if !ok {
		t.SkipNow()
	}
	t.Parallel()
	return addr
}
