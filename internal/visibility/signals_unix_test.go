//go:build unix

package visibility

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalSource_Loop(t *testing.T) {
	r := &recorder{}
	src := NewSignalSource(r, quietLogger())

	ch := make(chan os.Signal, 3)
	ch <- syscall.SIGUSR1
	ch <- syscall.SIGUSR2
	ch <- syscall.SIGHUP

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.loop(ctx, ch)
	}()

	require.Eventually(t, func() bool { return len(r.list()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"blur", "focus"}, r.list())
}
