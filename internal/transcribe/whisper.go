package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrWhisperDisabled = errors.New("whisper disabled")

type WhisperConfig struct {
	Enabled  bool
	Cmd      string
	Model    string
	Device   string
	Language string
	Task     string
	Args     []string
	Timeout  time.Duration
}

// WhisperConfigFromEnv reads the WHISPER_* variables.
func WhisperConfigFromEnv() WhisperConfig {
	c := WhisperConfig{
		Enabled:  whisperEnabled(),
		Cmd:      envOr("WHISPER_CMD", "whisper"),
		Model:    envOr("WHISPER_MODEL", "small"),
		Device:   envOr("WHISPER_DEVICE", "cpu"),
		Language: envOr("WHISPER_LANGUAGE", "en"),
		Task:     envOr("WHISPER_TASK", "transcribe"),
	}
	if extra := strings.TrimSpace(os.Getenv("WHISPER_ARGS")); extra != "" {
		c.Args = strings.Fields(extra)
	}
	if timeout := strings.TrimSpace(os.Getenv("WHISPER_TIMEOUT_SECONDS")); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
			c.Timeout = time.Duration(n) * time.Second
		}
	}
	return c
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func whisperEnabled() bool {
	v := strings.TrimSpace(os.Getenv("WHISPER_ENABLED"))
	if v == "" {
		return true
	}
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

// Whisper runs the openai-whisper CLI.
type Whisper struct {
	cfg WhisperConfig
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	return &Whisper{cfg: cfg}
}

// LogStartupInfo reports the resolved command and settings once at boot.
func (w *Whisper) LogStartupInfo() {
	cmdPath, err := exec.LookPath(w.cfg.Cmd)
	if err != nil {
		slog.Warn("whisper command not found", "cmd", w.cfg.Cmd, "error", err)
		return
	}
	slog.Info("whisper config",
		"enabled", w.cfg.Enabled,
		"cmd", cmdPath,
		"model", w.cfg.Model,
		"device", w.cfg.Device,
		"language", w.cfg.Language,
		"task", w.cfg.Task,
	)
	if w.cfg.Enabled && strings.EqualFold(w.cfg.Device, "cuda") {
		if _, err := os.Stat("/dev/nvidiactl"); err != nil {
			slog.Warn("gpu device nodes not found", "device", w.cfg.Device)
		}
	}
}

func (w *Whisper) args(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", w.cfg.Model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--device", w.cfg.Device,
		"--task", w.cfg.Task,
	}
	if w.cfg.Language != "" && !strings.EqualFold(w.cfg.Language, "auto") {
		args = append(args, "--language", w.cfg.Language)
	}
	return append(args, w.cfg.Args...)
}

func (w *Whisper) Transcribe(ctx context.Context, path string) (Result, error) {
	if !w.cfg.Enabled {
		return Result{}, ErrWhisperDisabled
	}
	cmdPath, err := exec.LookPath(w.cfg.Cmd)
	if err != nil {
		return Result{}, fmt.Errorf("whisper: command not found: %w", err)
	}

	outputDir, err := os.MkdirTemp("", "scanwatch-whisper-*")
	if err != nil {
		return Result{}, fmt.Errorf("whisper: temp dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, w.args(path, outputDir)...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("whisper failed: %w (output=%s)", err, strings.TrimSpace(buf.String()))
	}

	out, err := findOutput(outputDir, path)
	if err != nil {
		return Result{}, err
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		return Result{}, fmt.Errorf("whisper: read output: %w", err)
	}
	return parseWhisperJSON(raw)
}

func findOutput(dir, audioPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	cand := filepath.Join(dir, base+".json")
	if _, err := os.Stat(cand); err == nil {
		return cand, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(matches) == 0 {
		return "", fmt.Errorf("whisper output not found in %s", dir)
	}
	return matches[0], nil
}

type whisperOutput struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// parseWhisperJSON reads the CLI's json output. Confidence is the
// exponential of the mean segment avg_logprob.
func parseWhisperJSON(raw []byte) (Result, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("whisper: decode output: %w", err)
	}
	res := Result{Text: clean(out.Text)}
	if len(out.Segments) == 0 {
		return res, nil
	}
	var sum float64
	for _, s := range out.Segments {
		sum += s.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(out.Segments)))
	conf = math.Max(0, math.Min(1, conf))
	res.Confidence = &conf
	return res, nil
}
