package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/hbomb79/Aria/pkg/logger"
)

var log = logger.Get("Extract")

type Config struct {
	BinaryPath     string `yaml:"binary_path" env:"EXTRACTOR_BIN_PATH" env-default:"yt-dlp"`
	AudioFormat    string `yaml:"audio_format" env:"EXTRACTOR_AUDIO_FORMAT" env-default:"mp3"`
	AudioQuality   string `yaml:"audio_quality" env:"EXTRACTOR_AUDIO_QUALITY" env-default:"192K"`
	ProxyURL       string `yaml:"proxy_url" env:"PROXY_URL"`
	CookieFilePath string `yaml:"cookie_file" env:"EXTRACTOR_COOKIE_FILE"`
}

// ProgressHandler receives coarse percentage updates as the engine
// reports download progress. Handlers must return quickly.
type ProgressHandler func(pct int)

// Extractor is the boundary to the external extraction engine. Given a
// resource locator and a path, the engine either produces a file at
// that path or fails with an error whose message is surfaced to the
// user verbatim. Everything about HOW the engine acquires the media
// (clients, proxies, cookies) is opaque to the rest of Aria.
type Extractor interface {
	Extract(ctx context.Context, locator string, outputPath string, updateHandler ProgressHandler) error
}

// ytDlpExtractor shells out to a yt-dlp binary to perform the
// extraction and audio transcode in one invocation.
type ytDlpExtractor struct {
	config Config
}

func NewYtDlpExtractor(config Config) *ytDlpExtractor {
	return &ytDlpExtractor{config: config}
}

// Extract invokes the engine synchronously, blocking until the file at
// outputPath exists or the engine has failed. On failure any partially
// written output is removed before returning, so a FAILED job never
// leaves an orphaned artifact behind.
func (extractor *ytDlpExtractor) Extract(ctx context.Context, locator string, outputPath string, updateHandler ProgressHandler) error {
	args := extractor.buildArgs(locator, outputPath)
	log.Emit(logger.DEBUG, "Spawning extraction engine %s %v\n", extractor.config.BinaryPath, args)

	cmd := exec.CommandContext(ctx, extractor.config.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn engine: %w", err)
	}

	consumeProgress(stdout, updateHandler)

	if err := cmd.Wait(); err != nil {
		extractor.removePartials(outputPath)
		return parseEngineError(err, stderr.String())
	}

	if _, err := os.Stat(outputPath); err != nil {
		extractor.removePartials(outputPath)
		return fmt.Errorf("engine exited successfully but produced no output at %s", outputPath)
	}

	return nil
}

// buildArgs assembles the engine command line. The output template is
// the target path with the extension replaced by the engines '%(ext)s'
// placeholder so that its own post-processing lands the final file at
// outputPath.
func (extractor *ytDlpExtractor) buildArgs(locator string, outputPath string) []string {
	template := strings.TrimSuffix(outputPath, "."+extractor.config.AudioFormat) + ".%(ext)s"

	args := []string{
		"--no-playlist",
		"--newline",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", extractor.config.AudioFormat,
		"--audio-quality", extractor.config.AudioQuality,
		"--output", template,
	}

	if extractor.config.ProxyURL != "" {
		args = append(args, "--proxy", extractor.config.ProxyURL)
	}
	if extractor.config.CookieFilePath != "" {
		if _, err := os.Stat(extractor.config.CookieFilePath); err == nil {
			args = append(args, "--cookies", extractor.config.CookieFilePath)
		}
	}

	return append(args, locator)
}

// removePartials best-effort deletes the output file and the engines
// in-progress '.part' sibling following a failed run.
func (extractor *ytDlpExtractor) removePartials(outputPath string) {
	for _, path := range []string{outputPath, outputPath + ".part"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.WARNING, "Failed to remove partial output %s: %v\n", path, err)
		}
	}
}

var progressMatcher = regexp.MustCompile(`(\d+)(?:\.\d+)?%`)

// consumeProgress scans the engines stdout line-by-line, reporting any
// percentage it finds to the handler provided. The scan runs on the
// calling goroutine and returns once the engine closes its stdout.
func consumeProgress(stdout io.Reader, updateHandler ProgressHandler) {
	scanner := bufio.NewScanner(stdout)
	lastReported := -1
	for scanner.Scan() {
		groups := progressMatcher.FindStringSubmatch(scanner.Text())
		if groups == nil || updateHandler == nil {
			continue
		}

		if pct, err := strconv.Atoi(groups[1]); err == nil && pct != lastReported {
			lastReported = pct
			updateHandler(pct)
		}
	}
}

// parseEngineError tries to pick out the relevant information from the
// engines (potentially very large) stderr output. yt-dlp prefixes its
// genuine failures with 'ERROR:', so prefer the last such line; if none
// is present fall back to the final non-empty line, and failing that
// the process exit error itself.
func parseEngineError(err error, stderr string) error {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")

	var lastError, lastLine string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lastLine = line
		if strings.HasPrefix(line, "ERROR:") {
			lastError = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}

	if lastError != "" {
		return errors.New(lastError)
	}
	if lastLine != "" {
		return errors.New(lastLine)
	}

	return err
}
