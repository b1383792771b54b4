package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	userHeader        = "X-User-Id"
	defaultQty        = int32(1)

	codeOK        = "ok"
	codeTransport = "transport_error"

	scenarioSeries = "scenario"
)

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCancel loadMode = "create-pay-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	userID      string
	productID   string
	quantity    int
	outputPath  string
}

type latencyQuantiles struct {
	MinMs float64 `json:"min_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs float64 `json:"max_ms"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	Latency   latencyQuantiles `json:"latency"`
}

type runReport struct {
	StartedAt      time.Time             `json:"started_at"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	RPS            float64               `json:"rps"`
	Scenario       callReport            `json:"scenario"`
	Calls          map[string]callReport `json:"calls"`
}

type callSeries struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	durations []time.Duration
}

func (s *callSeries) report() callReport {
	codes := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codes[code] = count
	}
	return callReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: errorRate(s.failed, s.calls),
		Codes:     codes,
		Latency:   summarizeLatency(s.durations),
	}
}

type metrics struct {
	mu     sync.Mutex
	series map[string]*callSeries
}

func newMetrics() *metrics {
	return &metrics{series: make(map[string]*callSeries)}
}

func (m *metrics) record(name string, elapsed time.Duration, code string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.series[name]
	if series == nil {
		series = &callSeries{codes: make(map[string]int64)}
		m.series[name] = series
	}

	series.calls++
	if ok {
		series.success++
	} else {
		series.failed++
	}
	series.codes[code]++
	series.durations = append(series.durations, elapsed)
}

func (m *metrics) summarize(startedAt time.Time, elapsed time.Duration) runReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := runReport{
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
		Calls:          make(map[string]callReport, len(m.series)),
	}
	for name, series := range m.series {
		if name == scenarioSeries {
			result.Scenario = series.report()
			continue
		}
		result.Calls[name] = series.report()
	}
	if elapsed > 0 {
		result.RPS = float64(result.Scenario.Calls) / elapsed.Seconds()
	}
	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-pay | create-pay-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-pay mode (0..100)")
	flag.StringVar(&cfg.userID, "user", "load-user", "buyer user id (must exist in the target environment)")
	flag.StringVar(&cfg.productID, "product", "load-product", "product id (must exist with enough stock)")
	flag.IntVar(&cfg.quantity, "quantity", int(defaultQty), "order quantity")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	var err error
	if cfg.timeout, err = time.ParseDuration(strings.TrimSpace(timeoutValue)); err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	if cfg.duration, err = time.ParseDuration(strings.TrimSpace(durationValue)); err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")

	return cfg, nil
}

func (c config) validate() error {
	switch {
	case c.duration < 0:
		return errors.New("duration must be >= 0")
	case c.duration == 0 && c.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case c.duration > 0 && c.totalSet && c.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case c.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.timeout <= 0:
		return errors.New("timeout must be > 0")
	case c.quantity <= 0:
		return errors.New("quantity must be > 0")
	case c.cancelRate < 0 || c.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(c.userID) == "":
		return errors.New("user is required")
	case strings.TrimSpace(c.productID) == "":
		return errors.New("product is required")
	case !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://"):
		return fmt.Errorf("addr must be an http(s) URL: %s", c.baseURL)
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	mode := loadMode(strings.TrimSpace(value))
	switch mode {
	case modeCreate, modeCreatePay, modeCreatePayCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
		},
	}

	sink := newMetrics()
	runTag := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())

	jobs := make(chan int, cfg.concurrency*2)
	var scenarioFailures int64
	var wg sync.WaitGroup
	wg.Add(cfg.concurrency)
	for i := 0; i < cfg.concurrency; i++ {
		go func() {
			defer wg.Done()
			for seq := range jobs {
				if runErr := runScenario(client, cfg, seq, runTag, sink); runErr != nil {
					atomic.AddInt64(&scenarioFailures, 1)
				}
			}
		}()
	}

	startedAt := time.Now()
	feedJobs(jobs, cfg)
	wg.Wait()

	result := sink.summarize(startedAt, time.Since(startedAt))
	printSummary(result, cfg)
	if cfg.outputPath != "" {
		if err := saveReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if atomic.LoadInt64(&scenarioFailures) > 0 {
		os.Exit(1)
	}
}

func feedJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	limit := cfg.total
	if cfg.duration > 0 && !cfg.totalSet {
		limit = -1
	}

	var expired <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		expired = timer.C
	}

	for seq := 0; limit < 0 || seq < limit; seq++ {
		select {
		case <-expired:
			return
		case jobs <- seq:
		}
	}
}

func runScenario(client *http.Client, cfg config, seq int, runTag string, sink *metrics) error {
	scenarioStart := time.Now()
	scenarioCode := codeOK
	scenarioOK := true
	defer func() {
		sink.record(scenarioSeries, time.Since(scenarioStart), scenarioCode, scenarioOK)
	}()

	fail := func(code string, err error) error {
		scenarioCode = code
		scenarioOK = false
		return err
	}

	createKey := fmt.Sprintf("lt-create-%s-%d", runTag, seq)
	orderID, code, err := callCreateOrder(client, cfg, createKey, sink)
	if err != nil {
		return fail(code, err)
	}
	if orderID == "" {
		return fail("empty_order_id", errors.New("create response returned empty order id"))
	}

	if cfg.mode == modeCreate {
		return nil
	}

	transactionID := fmt.Sprintf("lt-txn-%s-%d", runTag, seq)
	if code, err := callOrderAction(client, cfg, orderID, "payment/confirm",
		map[string]string{"transaction_id": transactionID}, "ConfirmPayment", sink); err != nil {
		return fail(code, err)
	}

	if cfg.mode == modeCreatePayCancel || (cfg.mode == modeCreatePay && cancelPlanned(seq, cfg.cancelRate)) {
		if code, err := callOrderAction(client, cfg, orderID, "cancel",
			map[string]string{"reason": "load-cancel"}, "CancelOrder", sink); err != nil {
			return fail(code, err)
		}
	}

	return nil
}

type createdOrder struct {
	ID string `json:"id"`
}

func callCreateOrder(client *http.Client, cfg config, key string, sink *metrics) (string, string, error) {
	body, _ := json.Marshal(map[string]any{
		"product_id":     cfg.productID,
		"quantity":       cfg.quantity,
		"payment_method": "card",
		"shipping": map[string]string{
			"street":  "load street 1",
			"city":    "load city",
			"country": "RU",
		},
	})

	start := time.Now()
	resp, err := doPost(client, cfg, cfg.baseURL+"/api/v1/orders", body, key)
	if err != nil {
		sink.record("CreateOrder", time.Since(start), codeTransport, false)
		return "", codeTransport, err
	}
	defer func() { _ = resp.Body.Close() }()

	code := strconv.Itoa(resp.StatusCode)
	ok := resp.StatusCode == http.StatusCreated
	sink.record("CreateOrder", time.Since(start), code, ok)
	if !ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", code, fmt.Errorf("create order returned status %d", resp.StatusCode)
	}

	var created createdOrder
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", "decode_error", fmt.Errorf("decode create response: %w", err)
	}
	return created.ID, code, nil
}

func callOrderAction(client *http.Client, cfg config, orderID, action string, payload map[string]string, method string, sink *metrics) (string, error) {
	body, _ := json.Marshal(payload)

	start := time.Now()
	resp, err := doPost(client, cfg, fmt.Sprintf("%s/api/v1/orders/%s/%s", cfg.baseURL, orderID, action), body, "")
	if err != nil {
		sink.record(method, time.Since(start), codeTransport, false)
		return codeTransport, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	code := strconv.Itoa(resp.StatusCode)
	ok := resp.StatusCode == http.StatusOK
	sink.record(method, time.Since(start), code, ok)
	if !ok {
		return code, fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}
	return code, nil
}

func doPost(client *http.Client, cfg config, url string, body []byte, idempotencyKey string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userHeader, cfg.userID)
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}
	return client.Do(req)
}

func cancelPlanned(seq, rate int) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 100:
		return true
	default:
		return seq%100 < rate
	}
}

func saveReport(path string, result runReport) error {
	cleanPath := filepath.Clean(path)
	switch {
	case cleanPath == "." || cleanPath == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cleanPath, append(data, '\n'), 0o600)
}

func printSummary(result runReport, cfg config) {
	fmt.Printf("load test finished: mode=%s target=%s\n", cfg.mode, targetLabel(cfg))
	fmt.Printf("scenarios: total=%d success=%d failed=%d error_rate=%.4f rps=%.2f elapsed=%.2fs\n",
		result.Scenario.Calls,
		result.Scenario.Success,
		result.Scenario.Failed,
		result.Scenario.ErrorRate,
		result.RPS,
		result.ElapsedSeconds,
	)
	fmt.Printf("scenario latency ms: p50=%.2f p95=%.2f p99=%.2f min=%.2f avg=%.2f max=%.2f\n",
		result.Scenario.Latency.P50Ms,
		result.Scenario.Latency.P95Ms,
		result.Scenario.Latency.P99Ms,
		result.Scenario.Latency.MinMs,
		result.Scenario.Latency.AvgMs,
		result.Scenario.Latency.MaxMs,
	)

	names := make([]string, 0, len(result.Calls))
	for name := range result.Calls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		call := result.Calls[name]
		fmt.Printf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			call.Calls,
			call.Success,
			call.Failed,
			call.ErrorRate,
			call.Latency.P95Ms,
		)
	}
}

func targetLabel(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func summarizeLatency(durations []time.Duration) latencyQuantiles {
	if len(durations) == 0 {
		return latencyQuantiles{}
	}

	ms := make([]float64, len(durations))
	for i, d := range durations {
		ms[i] = float64(d.Microseconds()) / 1000.0
	}
	sort.Float64s(ms)

	var sum float64
	for _, v := range ms {
		sum += v
	}

	return latencyQuantiles{
		MinMs: ms[0],
		AvgMs: sum / float64(len(ms)),
		P50Ms: percentileMs(ms, 50),
		P95Ms: percentileMs(ms, 95),
		P99Ms: percentileMs(ms, 99),
		MaxMs: ms[len(ms)-1],
	}
}

// Nearest-rank percentile over an already sorted sample.
func percentileMs(sortedMs []float64, p float64) float64 {
	if len(sortedMs) == 0 {
		return 0
	}

	rank := int(math.Ceil(p / 100.0 * float64(len(sortedMs))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sortedMs) {
		rank = len(sortedMs)
	}
	return sortedMs[rank-1]
}

func errorRate(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
