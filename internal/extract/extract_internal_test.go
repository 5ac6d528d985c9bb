package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseEngineError_PrefersErrorLines(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 1")
	stderr := strings.Join([]string{
		"WARNING: unable to extract channel id",
		"[youtube] extracting player response",
		"ERROR: [youtube] abc123: Video unavailable",
		"",
	}, "\n")

	err := parseEngineError(exitErr, stderr)
	assert.EqualError(t, err, "[youtube] abc123: Video unavailable")
}

func Test_ParseEngineError_FallsBackToLastLine(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 1")
	err := parseEngineError(exitErr, "something went sideways\nfinal diagnostic line\n")
	assert.EqualError(t, err, "final diagnostic line")
}

func Test_ParseEngineError_FallsBackToExitError(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 127")
	assert.Equal(t, exitErr, parseEngineError(exitErr, "   \n \n"))
}

func Test_BuildArgs_PassesEngineOptionsThrough(t *testing.T) {
	t.Parallel()

	cookieFile := filepath.Join(t.TempDir(), "cookies.txt")
	assert.Nil(t, os.WriteFile(cookieFile, []byte("# Netscape HTTP Cookie File"), 0o644))

	extractor := NewYtDlpExtractor(Config{
		BinaryPath:     "yt-dlp",
		AudioFormat:    "mp3",
		AudioQuality:   "192K",
		ProxyURL:       "socks5://127.0.0.1:9050",
		CookieFilePath: cookieFile,
	})

	args := extractor.buildArgs("https://example.test/video", "/tmp/artifacts/abc.mp3")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "--output /tmp/artifacts/abc.%(ext)s")
	assert.Contains(t, joined, "--audio-format mp3")
	assert.Contains(t, joined, "--proxy socks5://127.0.0.1:9050")
	assert.Contains(t, joined, "--cookies "+cookieFile)
	assert.Equal(t, "https://example.test/video", args[len(args)-1])
}

func Test_BuildArgs_OmitsAbsentOptions(t *testing.T) {
	t.Parallel()

	extractor := NewYtDlpExtractor(Config{BinaryPath: "yt-dlp", AudioFormat: "mp3", AudioQuality: "192K"})
	joined := strings.Join(extractor.buildArgs("https://example.test/video", "/tmp/abc.mp3"), " ")

	assert.NotContains(t, joined, "--proxy")
	assert.NotContains(t, joined, "--cookies")
}

func Test_ConsumeProgress_ReportsPercentages(t *testing.T) {
	t.Parallel()

	engineOutput := strings.Join([]string{
		"[youtube] abc123: Downloading webpage",
		"[download]   0.0% of 3.42MiB at 512.00KiB/s ETA 00:06",
		"[download]  48.6% of 3.42MiB at 1.20MiB/s ETA 00:01",
		"[download] 100% of 3.42MiB in 00:03",
		"[ExtractAudio] Destination: abc.mp3",
	}, "\n")

	reported := make([]int, 0)
	consumeProgress(strings.NewReader(engineOutput), func(pct int) {
		reported = append(reported, pct)
	})

	assert.Equal(t, []int{0, 48, 100}, reported)
}
