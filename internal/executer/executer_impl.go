package executer

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

type executer_impl struct {
	timeout time.Duration
}

func (e *executer_impl) Exec(cmdName string, args ...string) ([]byte, error) {
	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	res, err := exec.CommandContext(ctx, cmdName, args...).CombinedOutput()
	if ctx.Err() != nil {
		return res, fmt.Errorf("command %s timed out after %s: %w", cmdName, e.timeout, ctx.Err())
	}
	return res, err
}
