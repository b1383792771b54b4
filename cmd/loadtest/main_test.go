package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	fn()
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"create", "create-pay", "create-pay-cancel"} {
		got, err := parseMode("  " + valid + " ")
		if err != nil {
			t.Fatalf("parseMode(%q): %v", valid, err)
		}
		if got != loadMode(valid) {
			t.Fatalf("parseMode(%q) = %q", valid, got)
		}
	}

	if _, err := parseMode("bad"); err == nil || !strings.Contains(err.Error(), "unsupported mode") {
		t.Fatalf("expected unsupported mode error, got %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=http://127.0.0.1:8080/",
			"-mode=create-pay",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-cancel-rate=10",
			"-user=stage-user",
			"-product=stage-product",
			"-quantity=2",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeCreatePay {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.quantity != 2 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
			if cfg.baseURL != "http://127.0.0.1:8080" {
				t.Fatalf("expected trailing slash to be trimmed, got %s", cfg.baseURL)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid cancel rate", args: []string{"-cancel-rate=101"}, wantErr: "cancel-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "zero total with duration", args: []string{"-duration=3s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "non-http addr", args: []string{"-addr=localhost:8080"}, wantErr: "must be an http(s) URL"},
			{name: "zero quantity", args: []string{"-quantity=0"}, wantErr: "quantity must be > 0"},
			{name: "blank user", args: []string{"-user= "}, wantErr: "user is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestFeedJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		feedJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			feedJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		feedJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestMetricsSummarize(t *testing.T) {
	sink := newMetrics()
	sink.record(scenarioSeries, 10*time.Millisecond, codeOK, true)
	sink.record(scenarioSeries, 20*time.Millisecond, "409", false)
	sink.record("CreateOrder", 15*time.Millisecond, "201", true)

	result := sink.summarize(time.Now(), 2*time.Second)
	if result.Scenario.Calls != 2 || result.Scenario.Failed != 1 {
		t.Fatalf("unexpected scenario totals: %+v", result.Scenario)
	}
	if result.Scenario.Codes[codeOK] != 1 || result.Scenario.Codes["409"] != 1 {
		t.Fatalf("unexpected scenario codes: %+v", result.Scenario.Codes)
	}
	if result.RPS != 1 {
		t.Fatalf("expected rps=1 for 2 scenarios over 2s, got %f", result.RPS)
	}
	if _, ok := result.Calls[scenarioSeries]; ok {
		t.Fatalf("scenario series must not appear in per-call map")
	}

	create, ok := result.Calls["CreateOrder"]
	if !ok || create.Success != 1 {
		t.Fatalf("unexpected CreateOrder stats: %+v", create)
	}
	if create.Latency.MinMs != 15 || create.Latency.MaxMs != 15 {
		t.Fatalf("unexpected CreateOrder latency: %+v", create.Latency)
	}
}

func TestSummarizeLatency(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
	}

	got := summarizeLatency(durations)
	want := latencyQuantiles{MinMs: 10, AvgMs: 25, P50Ms: 20, P95Ms: 40, P99Ms: 40, MaxMs: 40}
	if got != want {
		t.Fatalf("unexpected quantiles: got %+v want %+v", got, want)
	}

	if empty := summarizeLatency(nil); empty != (latencyQuantiles{}) {
		t.Fatalf("expected zero quantiles for empty input, got %+v", empty)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0, want: 10},
		{p: 50, want: 30},
		{p: 90, want: 50},
		{p: 100, want: 50},
	}
	for _, tc := range tests {
		if got := percentileMs(sorted, tc.p); got != tc.want {
			t.Fatalf("percentileMs(%v, %v) = %v, want %v", sorted, tc.p, got, tc.want)
		}
	}

	if got := percentileMs(nil, 95); got != 0 {
		t.Fatalf("empty sample must yield 0, got %v", got)
	}
}

func TestErrorRateAndTargetLabel(t *testing.T) {
	if got := errorRate(1, 4); got != 0.25 {
		t.Fatalf("errorRate mismatch: %f", got)
	}
	if got := errorRate(1, 0); got != 0 {
		t.Fatalf("errorRate with zero total must be 0, got %f", got)
	}

	if got := targetLabel(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected target label: %s", got)
	}
	if got := targetLabel(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration target label: %s", got)
	}
	if got := targetLabel(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration target label: %s", got)
	}
}

func TestCancelPlanned(t *testing.T) {
	if cancelPlanned(5, 0) {
		t.Fatal("cancel rate 0 must never cancel")
	}
	if !cancelPlanned(5, 100) {
		t.Fatal("cancel rate 100 must always cancel")
	}
	if !cancelPlanned(4, 5) || cancelPlanned(5, 5) {
		t.Fatal("cancel rate 5 must cancel sequence values 0..4 within each hundred")
	}
}

func TestSaveReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := runReport{Scenario: callReport{Calls: 2, Success: 2}}
	if err := saveReport(path, sample); err != nil {
		t.Fatalf("saveReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded runReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Scenario.Calls != 2 || decoded.Scenario.Success != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := saveReport(".", sample); err == nil || !strings.Contains(err.Error(), "must point to a file") {
		t.Fatalf("expected path validation error, got %v", err)
	}
}

func newFakeAPI(t *testing.T, confirmStatus, cancelStatus int) (*httptest.Server, *int64) {
	t.Helper()

	var created int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userHeader) == "" {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		if r.Header.Get(idempotencyHeader) == "" {
			http.Error(w, "missing idempotency key", http.StatusBadRequest)
			return
		}
		atomic.AddInt64(&created, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "order-1"})
	})
	mux.HandleFunc("POST /api/v1/orders/order-1/payment/confirm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(confirmStatus)
	})
	mux.HandleFunc("POST /api/v1/orders/order-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(cancelStatus)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &created
}

func TestRunScenario(t *testing.T) {
	srv, created := newFakeAPI(t, http.StatusOK, http.StatusOK)

	cfg := config{
		baseURL:   srv.URL,
		mode:      modeCreatePayCancel,
		timeout:   time.Second,
		userID:    "load-user",
		productID: "load-product",
		quantity:  1,
	}

	sink := newMetrics()
	if err := runScenario(srv.Client(), cfg, 1, "run-1", sink); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}
	if *created != 1 {
		t.Fatalf("expected one create call, got %d", *created)
	}

	result := sink.summarize(time.Now(), time.Second)
	if result.Scenario.Success != 1 {
		t.Fatalf("expected one successful scenario, got %+v", result.Scenario)
	}
	for _, name := range []string{"CreateOrder", "ConfirmPayment", "CancelOrder"} {
		call, ok := result.Calls[name]
		if !ok || call.Success != 1 {
			t.Fatalf("expected one successful %s call, got %+v", name, call)
		}
	}
}

func TestRunScenario_ConfirmFails(t *testing.T) {
	srv, _ := newFakeAPI(t, http.StatusConflict, http.StatusOK)

	cfg := config{
		baseURL:   srv.URL,
		mode:      modeCreatePay,
		timeout:   time.Second,
		userID:    "load-user",
		productID: "load-product",
		quantity:  1,
	}

	sink := newMetrics()
	err := runScenario(srv.Client(), cfg, 1, "run-2", sink)
	if err == nil || !strings.Contains(err.Error(), "status 409") {
		t.Fatalf("expected 409 error, got %v", err)
	}

	result := sink.summarize(time.Now(), time.Second)
	if result.Scenario.Failed != 1 || result.Scenario.Codes["409"] != 1 {
		t.Fatalf("unexpected scenario stats: %+v", result.Scenario)
	}
}

func TestRunScenario_EmptyOrderID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config{
		baseURL:   srv.URL,
		mode:      modeCreate,
		timeout:   time.Second,
		userID:    "load-user",
		productID: "load-product",
		quantity:  1,
	}

	err := runScenario(srv.Client(), cfg, 1, "run-3", newMetrics())
	if err == nil || !strings.Contains(err.Error(), "empty order id") {
		t.Fatalf("expected empty id error, got %v", err)
	}
}

func TestPrintSummary(t *testing.T) {
	result := runReport{
		Scenario: callReport{Calls: 2, Success: 2},
		Calls: map[string]callReport{
			"CreateOrder": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printSummary(result, config{mode: modeCreate, total: 2})
	})

	if !strings.Contains(out, "load test finished: mode=create target=count:2") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "CreateOrder") {
		t.Fatalf("expected per-call section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	srv, created := newFakeAPI(t, http.StatusOK, http.StatusOK)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-addr=" + srv.URL,
		"-mode=create",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if *created != 5 {
		t.Fatalf("expected 5 create calls, got %d", *created)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
