package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireWritesInfo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".tracklog")
	l := New(dir)
	if err := l.Acquire(context.Background(), 0, "bulk-edit", "tracklog.db"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = l.Release() }()

	info, err := ReadLockInfo(l.Path())
	if err != nil {
		t.Fatalf("ReadLockInfo: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.Command != "bulk-edit" || info.Database != "tracklog.db" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestAcquireBusy(t *testing.T) {
	dir := t.TempDir()
	holder := New(dir)
	if err := holder.Acquire(context.Background(), 0, "delete", ""); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = holder.Release() }()

	// A second flock on the same path conflicts even within one process.
	waiter := New(dir)
	start := time.Now()
	err := waiter.Acquire(context.Background(), 150*time.Millisecond, "move", "")
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("Acquire = %v, want ErrLockBusy", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("Acquire should have waited for the timeout")
	}
	if !strings.Contains(err.Error(), "delete") {
		t.Errorf("error should name the holder's command: %v", err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if err := first.Acquire(context.Background(), 0, "copy", ""); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- New(dir).Acquire(context.Background(), 2*time.Second, "copy", "")
	}()
	time.Sleep(100 * time.Millisecond)
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("waiter should get the lock after release: %v", err)
	}
}

func TestAcquireCancelled(t *testing.T) {
	dir := t.TempDir()
	holder := New(dir)
	if err := holder.Acquire(context.Background(), 0, "delete", ""); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = holder.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(dir).Acquire(ctx, time.Second, "move", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l := New(t.TempDir())
	if err := l.Release(); err != nil {
		t.Errorf("Release before Acquire: %v", err)
	}
	if err := l.Acquire(context.Background(), 0, "delete", ""); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestReadLockInfo(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantPID int
		wantErr bool
	}{
		{"json", `{"pid":42,"command":"delete","started_at":"2026-03-10T09:30:00Z"}`, 42, false},
		{"bare pid", "1234\n", 1234, false},
		{"empty", "", 0, false},
		{"garbage", "not a lock", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			info, err := ReadLockInfo(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadLockInfo error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && info.PID != tt.wantPID {
				t.Errorf("PID = %d, want %d", info.PID, tt.wantPID)
			}
		})
	}

	if _, err := ReadLockInfo(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("missing file: %v", err)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(0) || isProcessRunning(-1) {
		t.Error("non-positive PIDs are never running")
	}
}
