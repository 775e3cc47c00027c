package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	certtls "mercator-hq/certwatch/pkg/security/tls"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunAll_FirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	var cancelled atomic.Bool

	err := runAll(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Store(true)
			return nil
		},
		func(context.Context) error { return boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("runAll() = %v, want %v", err, boom)
	}
	if !cancelled.Load() {
		t.Error("the other runner was not cancelled")
	}
}

func TestRunAll_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runAll(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runAll() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runAll() did not return after cancel")
	}
}

func TestReloadOnSignal(t *testing.T) {
	dir := t.TempDir()
	generate(t, dir, "", false)

	var reloads atomic.Int32
	serverCtx := certtls.NewServerContext(certtls.Config{
		KeyStore:   filepath.Join(dir, keyStoreFile),
		TrustStore: filepath.Join(dir, trustStoreFile),
		Watch:      certtls.WatchConfig{Disabled: true},
	},
		certtls.WithLogger(discardLogger()),
		certtls.WithOnReload(func(*certtls.Material) { reloads.Add(1) }),
	)
	if err := serverCtx.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer serverCtx.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	go reloadOnSignal(ctx, signals, discardLogger(), serverCtx.Context)

	signals <- syscall.SIGHUP

	deadline := time.Now().Add(5 * time.Second)
	for reloads.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("reloads = %d, want 2 (startup and signal)", reloads.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
