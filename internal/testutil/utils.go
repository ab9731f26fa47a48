package testutil

import (
	"bytes"
	"log"
	"sync"
	"testing"
)

// testWriter routes log output to the test log so it is only shown for
// failing or verbose runs. Writes after the test finished are dropped since
// hub and client goroutines can outlive it.
type testWriter struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.done {
		w.t.Log(string(bytes.TrimRight(p, "\n")))
	}
	return len(p), nil
}

func TestLogger(t testing.TB) *log.Logger {
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	return log.New(w, "[test] ", log.LstdFlags)
}
