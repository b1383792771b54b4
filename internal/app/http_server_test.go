package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/mvshop/internal/health"
	"github.com/vladislavdragonenkov/mvshop/internal/version"
)

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func startTestMetricsServer(t *testing.T) (int, context.CancelFunc) {
	t.Helper()

	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "metrics-http"), healthHandler)
	if srv == nil {
		cancel()
		t.Fatal("startMetricsServer returned nil")
	}

	// Ждём, пока сервер начнёт отвечать
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/livez", port))
		if err == nil {
			resp.Body.Close()
			return port, cancel
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatal("metrics server did not start")
	return 0, nil
}

func TestMetricsServer_Endpoints(t *testing.T) {
	port, cancel := startTestMetricsServer(t)
	defer cancel()

	cases := []struct {
		path     string
		wantBody string
	}{
		{path: "/metrics"},
		{path: "/healthz"},
		{path: "/livez", wantBody: "ok"},
		{path: "/readyz", wantBody: "ready"},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(fmt.Sprintf("http://localhost:%d%s", port, tc.path))
			if err != nil {
				t.Fatalf("get %s: %v", tc.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("%s returned %d, expected 200", tc.path, resp.StatusCode)
			}

			body, _ := io.ReadAll(resp.Body)
			if len(body) == 0 {
				t.Errorf("%s returned empty body", tc.path)
			}
			if tc.wantBody != "" && string(body) != tc.wantBody {
				t.Errorf("%s returned %q, expected %q", tc.path, string(body), tc.wantBody)
			}
		})
	}
}

func TestMetricsServer_StopsOnContextCancel(t *testing.T) {
	port, cancel := startTestMetricsServer(t)

	url := fmt.Sprintf("http://localhost:%d/livez", port)

	cancel()
	time.Sleep(200 * time.Millisecond)

	if _, err := http.Get(url); err == nil {
		t.Error("server should be stopped after context cancellation")
	}
}

func TestMetricsServer_BusyPort(t *testing.T) {
	// Занимаем порт заранее: ListenAndServe упадёт, но конструктор
	// всё равно обязан вернуть сервер.
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("create listener: %v", err)
	}
	defer listener.Close()
	addr := fmt.Sprintf(":%d", listener.Addr().(*net.TCPAddr).Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := startMetricsServer(ctx, addr, log.WithField("test", "metrics-busy"), healthHandler)
	if srv == nil {
		t.Error("startMetricsServer should not return nil even when addr is busy")
	}
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	// Не должно паниковать
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestShutdownHTTP_StopsServer(t *testing.T) {
	port := findFreePort(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()

	url := fmt.Sprintf("http://localhost:%d/ping", port)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	shutdownHTTP(srv, log.WithField("test", "http-shutdown"))

	if _, err := http.Get(url); err == nil {
		t.Error("server should be stopped after shutdownHTTP")
	}
}
