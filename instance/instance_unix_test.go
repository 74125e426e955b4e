//go:build !windows

package instance

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/esmem/esmem/testing/testcontext"
)

var childPid = regexp.MustCompile(`child pid (\d+)`)

func TestSupervisor_Kill_ProcessGroup(t *testing.T) {
	ctx := testcontext.Background()
	s := newFake(t, "fork")
	assert.Assert(t, s.Run(ctx))

	m := childPid.FindStringSubmatch(s.Logs())
	assert.Assert(t, len(m) == 2, s.Logs())
	pid, err := strconv.Atoi(m[1])
	assert.Assert(t, err)
	assert.Assert(t, syscall.Kill(pid, 0))

	assert.Assert(t, s.Kill(ctx))

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		err := syscall.Kill(pid, 0)
		if errors.Is(err, syscall.ESRCH) || isZombie(pid) {
			return poll.Success()
		}
		return poll.Continue("child %d still running: %v", pid, err)
	}, poll.WithTimeout(5*time.Second))
}

// isZombie reports whether pid has exited but not yet been reaped by its new parent.
func isZombie(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte(") Z "))
}
