package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PDUFAScanner/internal/config"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return fmt.Sprint(port)
}

func TestApplicationServesAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Scheduler.RunOnStart = false
	cfg.Sites = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := New(ctx, cfg, zap.NewNop(), "test")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	base := "http://127.0.0.1:" + cfg.Server.Port
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/pdufa/scheduler/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), `"running":true`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not shut down")
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.CronExpression = "every day"
	_, err := New(context.Background(), cfg, zap.NewNop(), "test")
	require.Error(t, err)
}
