//go:build !unix

package hooks

import (
	"bytes"
	"context"
	"os/exec"

	"go.opentelemetry.io/otel/codes"
)

// runHook executes the hook and enforces a timeout. Without process groups
// only the started process is killed; detached descendants may survive.
func (r *Runner) runHook(ctx context.Context, path, issueID, kind string, payload []byte) (retErr error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := startSpan(ctx, path, issueID, kind)
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	cmd := exec.Command(path, issueID, kind)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		addHookOutputEvents(span, &stdout, &stderr)
		return ctx.Err()
	case err := <-done:
		addHookOutputEvents(span, &stdout, &stderr)
		return err
	}
}
