package browsertest

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// ChromeEnv names a Chrome binary to use instead of searching PATH.
const ChromeEnv = "SWEEPER_TEST_CHROME"

var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// ChromePath returns a Chrome binary for tests that drive a real browser. The
// test is skipped in short mode or when no binary can be found.
func ChromePath(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping real browser test in short mode")
	}
	if p := os.Getenv(ChromeEnv); p != "" {
		return p
	}
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skipf("no Chrome binary in PATH; set %s to run real browser tests", ChromeEnv)
	return ""
}

// ChromeConfig returns headless settings for ChromePath with waits short
// enough for tests against a local server.
func ChromeConfig(t testing.TB) (config.BrowserConfig, config.TimeoutConfig) {
	t.Helper()
	cfg := config.NewDefaultConfig()

	bc := cfg.Browser()
	bc.ExecPath = ChromePath(t)
	bc.Headless = true

	to := cfg.Timeouts()
	to.Navigation = 15 * time.Second
	to.PageDefault = 15 * time.Second
	to.PostLoadSettle = 0
	to.ChallengeGrace = 500 * time.Millisecond
	to.VisibilityProbe = 500 * time.Millisecond
	to.PatternSettle = 500 * time.Millisecond
	to.ClickPause = 0
	to.ActionSettle = 500 * time.Millisecond
	return bc, to
}
