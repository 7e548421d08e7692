package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/httpstream/client"
	"github.com/adamwoolhether/httpstream/client/netlog"
	"github.com/adamwoolhether/httpstream/client/throttle"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}

	return path
}

// unsetAPIKey removes the key for the test so a dotenv file may set it.
func unsetAPIKey(t *testing.T) {
	t.Helper()

	t.Setenv(APIKeyEnv, "")
	os.Unsetenv(APIKeyEnv)
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	unsetAPIKey(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := Config{
		DownloadDir: filepath.Join(home, "Downloads"),
		UserAgent:   defaultUserAgent,
		Timeout:     defaultTimeout,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ExplicitMissingConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), ""); err == nil {
		t.Fatal("exp error for explicit missing config")
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	unsetAPIKey(t)

	path := writeFile(t, "config.toml", `
base_url = "  https://api.example.com  "
download_dir = "~/files"
user_agent = "cli/2.0"
timeout = "45s"
max_concurrent = 3
privacy = "encrypt"
public_key_pin = "sha256/abc"
reachability_address = "api.example.com:443"

[throttle]
rps = 10
burst = 5
`)
	envPath := writeFile(t, "test.env", APIKeyEnv+"=from-dotenv\n")

	cfg, err := Load(path, envPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := Config{
		BaseURL:             "https://api.example.com",
		APIKey:              "from-dotenv",
		DownloadDir:         filepath.Join(home, "files"),
		UserAgent:           "cli/2.0",
		Timeout:             45 * time.Second,
		MaxConcurrent:       3,
		Privacy:             netlog.Encrypt,
		PublicKeyPin:        "sha256/abc",
		ReachabilityAddress: "api.example.com:443",
		Throttle:            &throttle.Config{RPS: 10, Burst: 5},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvironmentWinsOverDotenv(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-shell")

	path := writeFile(t, "config.toml", `base_url = "https://api.example.com"`)
	envPath := writeFile(t, "test.env", APIKeyEnv+"=from-dotenv\n")

	cfg, err := Load(path, envPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "from-shell" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "from-shell")
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "syntax", content: `base_url = `},
		{name: "timeout", content: `timeout = "soon"`},
		{name: "privacy", content: `privacy = "loud"`},
		{name: "throttle", content: "[throttle]\nrps = 0\nburst = 1\n"},
		{name: "concurrency", content: `max_concurrent = -1`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())

			if _, err := Load(writeFile(t, "config.toml", tc.content), ""); err == nil {
				t.Fatal("exp error")
			}
		})
	}
}

func TestConfig_ClientOptions(t *testing.T) {
	cfg := Config{
		DownloadDir:   t.TempDir(),
		UserAgent:     "cli/2.0",
		Timeout:       time.Second,
		MaxConcurrent: 2,
		Throttle:      &throttle.Config{RPS: 5, Burst: 1},
	}

	c, err := client.Build(cfg.ClientOptions(nil, nil)...)
	if err != nil {
		t.Fatalf("building client from config: %v", err)
	}
	defer c.CancelAllTasks()

	if c.Pinned() {
		t.Error("exp no pinning without a pin")
	}

	cfg.PublicKeyPin = "not a digest"
	if _, err := client.Build(cfg.ClientOptions(nil, nil)...); err == nil {
		t.Error("exp invalid pin to fail the build")
	}
}
