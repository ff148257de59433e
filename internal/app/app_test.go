package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/marigold/config"
	"github.com/Ramsey-B/marigold/pkg/ledger"
	"github.com/Ramsey-B/marigold/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig() config.Config {
	return config.Config{
		AppName:                      "marigold-test",
		Version:                      "test",
		Port:                         0,
		LogLevel:                     "info",
		HttpServerReadTimeoutSeconds: 10,
		HttpServerIdleTimeoutSeconds: 10,
		ReadHeaderTimeoutSeconds:     10,
		MaxHeaderBytes:               64000,
		AllowOrigins:                 []string{"*"},
		AllowMethods:                 []string{"GET", "POST"},
		StartupMaxAttempts:           1,
		LedgerDriver:                 config.LedgerDriverMemory,
		TimeZone:                     "UTC",
		Currency:                     "EGP",
		Locale:                       "en",
		ReferenceClockInterval:       time.Minute,
		AssistantTimeout:             time.Second,
	}
}

func get(t *testing.T, a *App, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func startApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, a.Stop(ctx))
	})
	return a
}

func TestApp_MemoryLedger(t *testing.T) {
	a := startApp(t, testConfig())
	assert.NotEmpty(t, a.Addr())

	code, body := get(t, a, "/api/v1/setup")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "live", body["mode"])

	require.Eventually(t, func() bool {
		code, body := get(t, a, "/api/v1/dashboard")
		return code == http.StatusOK && body["status"] == "ready"
	}, 2*time.Second, 10*time.Millisecond)

	code, body = get(t, a, "/api/v1/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, _ = get(t, a, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	a.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marigold_")
}

// localURL points at the bound port on loopback.
func localURL(t *testing.T, a *App, path string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(a.Addr())
	require.NoError(t, err)
	return "http://" + net.JoinHostPort("127.0.0.1", port) + path
}

func TestApp_StopClosesServer(t *testing.T) {
	a, err := New(testConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	client := &http.Client{Timeout: time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	url := localURL(t, a, "/api/v1/setup")

	res, err := client.Get(url)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	_, err = client.Get(url)
	assert.Error(t, err)
}

func TestApp_StopEndsOpenStreams(t *testing.T) {
	a, err := New(testConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	res, err := http.Get(localURL(t, a, "/api/v1/dashboard/stream"))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	line, err := bufio.NewReader(res.Body).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "id: "), line)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, a.Stop(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestApp_SetupMode(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerDriver = config.LedgerDriverMongo
	a := startApp(t, cfg)

	code, body := get(t, a, "/api/v1/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "setup", body["mode"])
	assert.Equal(t, []any{"LEDGER_URI", "LEDGER_API_KEY", "LEDGER_PROJECT_ID"}, body["missing"])

	code, body = get(t, a, "/api/v1/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])

	code, body = get(t, a, "/api/v1/students/s1")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "setup", body["mode"])
}

func TestApp_InvalidTimeZone(t *testing.T) {
	cfg := testConfig()
	cfg.TimeZone = "Mars/Olympus"
	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	memory := ledger.NewMemory()
	memory.PutStudent(models.Student{ID: "s1", FullName: "Amira Hassan", TotalPaid: decimal.NewFromInt(300), TotalDue: decimal.NewFromInt(50)})
	memory.PutPayment("s1", models.Payment{ID: "p1", PaymentName: "100", PaymentDate: time.Now().UTC().Format("2006-01-02"), PaymentType: "Term 1"})

	var out bytes.Buffer
	err := WriteReport(context.Background(), memory, testConfig(), testLogger(), &out, ReportOptions{Format: ReportFormatJSON, Wait: 2 * time.Second})
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	summary := report["dashboard"].(map[string]any)
	assert.Equal(t, "ready", summary["status"])
	assert.Equal(t, 1.0, summary["studentCount"])
	assert.Equal(t, 100.0, report["daily"].(map[string]any)["total"].(map[string]any)["value"])

	out.Reset()
	err = WriteReport(context.Background(), memory, testConfig(), testLogger(), &out, ReportOptions{Format: ReportFormatText, Wait: 2 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Status:            ready")
	assert.Contains(t, out.String(), "Amira Hassan")
}

func TestReport_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerDriver = config.LedgerDriverMongo

	err := Report(context.Background(), cfg, testLogger(), &bytes.Buffer{}, ReportOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorContains(t, err, "LEDGER_URI")
}
