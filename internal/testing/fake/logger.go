package fake

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// LogBuffer is a thread-safe buffer that collects the logs of a logger.
type LogBuffer struct {
	sync.Mutex
	buffer bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()

	return b.buffer.Write(p)
}

// String returns the logs written so far.
func (b *LogBuffer) String() string {
	b.Lock()
	defer b.Unlock()

	return b.buffer.String()
}

// Contains returns true if a log has the message.
func (b *LogBuffer) Contains(msg string) bool {
	return strings.Contains(b.String(), fmt.Sprintf(`"%s"`, msg))
}

// CheckLog returns a logger and a check function. When called, the function
// verifies that the logger has printed the message.
func CheckLog(msg string) (zerolog.Logger, func(t *testing.T)) {
	buffer := &LogBuffer{}

	check := func(t *testing.T) {
		require.Contains(t, buffer.String(), fmt.Sprintf(`"%s"`, msg))
	}

	return zerolog.New(buffer), check
}

// WaitLog returns a logger and a wait function. The function blocks until the
// logger prints the message, or fails the test after the timeout.
func WaitLog(msg string, timeout time.Duration) (zerolog.Logger, func(t *testing.T)) {
	buffer := &LogBuffer{}

	wait := func(t *testing.T) {
		require.Eventually(t, func() bool { return buffer.Contains(msg) },
			timeout, 5*time.Millisecond, "log not found in %s", buffer.String())
	}

	return zerolog.New(buffer), wait
}
