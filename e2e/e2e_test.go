//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "ircup-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "ircup")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// e2e/ is one level below the module root.
			return ".."
		}

		dir = parent
	}
}

// writeConfig writes a config pointing at both servers, with its own data
// dir, and returns its path.
func writeConfig(t *testing.T, irc *ircServer, tus *tusServer, extra string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := fmt.Sprintf(`data_dir = %q

[irc]
server = %q
nick = "e2e-bot"
target = "#e2e"

[upload]
server = %q
chunk_size = "64KiB"
%s
`, filepath.Join(dir, "data"), irc.URL(), tus.Endpoint(), extra)

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--config", cfgPath}, args...)...)
	// Keep the developer's environment from leaking into the run.
	cmd.Env = append(os.Environ(), "IRCUP_CONFIG=", "IRCUP_DATA_DIR=", "IRCUP_NICK=", "IRCUP_PASSWORD=")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, cfgPath string, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := runCLI(t, cfgPath, args...)
	if err != nil {
		t.Fatalf("ircup %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

func TestE2E_UploadAuthorizesAndShares(t *testing.T) {
	irc := newIRCServer(t, true)
	tus := newTusServer(t)
	cfgPath := writeConfig(t, irc, tus, "")

	content := bytes.Repeat([]byte("ircup "), 50_000) // several chunks
	file := filepath.Join(t.TempDir(), "holiday photo.jpg")
	require.NoError(t, os.WriteFile(file, content, 0o644))

	stdout, _ := mustRunCLI(t, cfgPath, "upload", file)

	shareURL := strings.TrimSpace(stdout)
	assert.Equal(t, tus.URL+"/files/f1/holiday%20photo.jpg", shareURL)

	data, auth := tus.upload("f1")
	assert.Equal(t, content, data)
	assert.Equal(t, irc.token, auth)

	msgs := irc.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "#e2e", msgs[0].Target)
	assert.Equal(t, "Uploaded file: "+shareURL, msgs[0].Text)
	assert.Equal(t, fmt.Sprint(len(content)), msgs[0].Tags["+kiwiirc.com/fileuploader/file_size"])
	assert.Equal(t, "image/jpeg", msgs[0].Tags["+kiwiirc.com/fileuploader/file_type"])

	t.Run("history", func(t *testing.T) {
		stdout, _ := mustRunCLI(t, cfgPath, "history", "--json")

		var entries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, shareURL, entries[0]["url"])
		assert.Equal(t, true, entries[0]["authorized"])
	})
}

func TestE2E_UploadWithoutEXTJWT(t *testing.T) {
	irc := newIRCServer(t, false)
	tus := newTusServer(t)
	cfgPath := writeConfig(t, irc, tus, `upload_message = "new file %URL%"`)

	file := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("plain"), 0o644))

	stdout, _ := mustRunCLI(t, cfgPath, "upload", file)

	_, auth := tus.upload("f1")
	assert.Empty(t, auth)

	irc.mu.Lock()
	assert.Zero(t, irc.extjwts, "no EXTJWT request without ISUPPORT EXTJWT=1")
	irc.mu.Unlock()

	msgs := irc.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new file "+strings.TrimSpace(stdout), msgs[0].Text)
}

func TestE2E_RejectedFileExitsNonZero(t *testing.T) {
	irc := newIRCServer(t, true)
	tus := newTusServer(t)
	cfgPath := writeConfig(t, irc, tus, `max_file_size = "1KB"`)

	dir := t.TempDir()
	small := filepath.Join(dir, "small.txt")
	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(small, []byte("ok"), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 4096), 0o644))

	stdout, stderr, err := runCLI(t, cfgPath, "upload", big, small)
	require.Error(t, err)

	assert.Contains(t, stderr, "big.bin")
	assert.Equal(t, 1, strings.Count(stdout, "\n"))
	assert.Len(t, irc.received(), 1)
}

func TestE2E_TokenShowsClaims(t *testing.T) {
	irc := newIRCServer(t, true)
	tus := newTusServer(t)
	cfgPath := writeConfig(t, irc, tus, "")

	stdout, _ := mustRunCLI(t, cfgPath, "token", "--json")

	var out struct {
		Token  string         `json:"token"`
		Claims map[string]any `json:"claims"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.Equal(t, irc.token, out.Token)
	assert.Equal(t, "e2e-bot", out.Claims["sub"])
	assert.Equal(t, "#e2e", out.Claims["channel"])
}

func TestE2E_ConfigShowRedactsPassword(t *testing.T) {
	irc := newIRCServer(t, true)
	tus := newTusServer(t)
	cfgPath := writeConfig(t, irc, tus, "")

	cfg, err := os.ReadFile(cfgPath)
	require.NoError(t, err)

	withPassword := strings.Replace(string(cfg), `nick = "e2e-bot"`, "nick = \"e2e-bot\"\npassword = \"hunter2\"", 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(withPassword), 0o600))

	stdout, _ := mustRunCLI(t, cfgPath, "config", "show")

	assert.Contains(t, stdout, irc.URL())
	assert.NotContains(t, stdout, "hunter2")
}
