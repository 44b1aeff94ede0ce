package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

const boardHTML = `<html><body>
<div data-jk="x1"><h2><span title="Backend Engineer">Backend Engineer</span></h2>
  <span data-testid="company-name">Initech</span><div data-testid="job-location">Seattle, WA</div></div>
</body></html>`

func newBoard(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/jobs":
			fmt.Fprint(w, boardHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, boardURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
logging:
  development: false
  level: error
scheduler:
  enabled: false
crawler:
  techniques: [direct]
sources:
  - id: board
    name: Test Board
    type: genericBoard
    base_url: %s
    is_active: true
    scraping_frequency_hours: 12
    keywords: ["h1b engineer"]
    max_pages: 1
`, boardURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRunPrintsSummary(t *testing.T) {
	cfg := writeConfig(t, newBoard(t).URL)

	out, err := execute(context.Background(), t, "--config", cfg, "run", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "Test Board")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1 runs, 1 scraped, 1 processed, 1 saved")
}

func TestRunJSON(t *testing.T) {
	cfg := writeConfig(t, newBoard(t).URL)

	out, err := execute(context.Background(), t, "--config", cfg, "run", "--force", "--json", "--source", "board")

	require.NoError(t, err)
	var res crawler.OrchestrationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.RunsExecuted)
	assert.Equal(t, 1, res.TotalJobsSaved)
	require.Len(t, res.SourcesProcessed, 1)
	assert.Equal(t, "board", res.SourcesProcessed[0].SourceID)
}

func TestRunUnknownSourceDoesNothing(t *testing.T) {
	cfg := writeConfig(t, newBoard(t).URL)

	out, err := execute(context.Background(), t, "--config", cfg, "run", "--source", "nope")

	require.NoError(t, err)
	assert.Contains(t, out, "0 runs")
}

func TestSourcesListsDueSources(t *testing.T) {
	cfg := writeConfig(t, "https://jobs.example.com")

	out, err := execute(context.Background(), t, "--config", cfg, "sources")

	require.NoError(t, err)
	assert.Contains(t, out, "Test Board")
	assert.Contains(t, out, "12h")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "true")
}

func TestRobotsCommand(t *testing.T) {
	board := newBoard(t)
	cfg := writeConfig(t, board.URL)

	out, err := execute(context.Background(), t, "--config", cfg, "robots", board.URL+"/private/x")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed:     false")
	assert.Contains(t, out, "agent:       H1BJobsBot")

	out, err = execute(context.Background(), t, "--config", cfg, "robots", board.URL+"/jobs", "--agent", "OtherBot")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed:     true")
}

func TestRobotsRequiresURL(t *testing.T) {
	cfg := writeConfig(t, "https://jobs.example.com")

	_, err := execute(context.Background(), t, "--config", cfg, "robots")

	require.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := writeConfig(t, "https://jobs.example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := execute(ctx, t, "--config", cfg, "serve", "--addr", "127.0.0.1:0")

	require.NoError(t, err)
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(context.Background(), t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "sources")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
