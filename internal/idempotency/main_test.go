package idempotency

import (
	"testing"

	"go.uber.org/goleak"
)

// Every MemoryStore runs a cleanup goroutine that Close must stop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
