package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/dgnsrekt/narrator-go/internal/wav"
)

var (
	// ErrPiperNotFound is returned when the piper binary is not found.
	ErrPiperNotFound = errors.New("piper binary not found")
	// ErrNoModelSpecified is returned when no model is configured.
	ErrNoModelSpecified = errors.New("no piper model specified")
)

// PiperConfig holds configuration for the Piper TTS engine.
type PiperConfig struct {
	// BinaryPath is the path to the piper executable.
	BinaryPath string
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// DefaultVoice is the speaker id used for "default" or empty voices.
	DefaultVoice string
}

// PiperEngine synthesizes with a local Piper process. Voices are numeric
// speaker ids of a multi-speaker model.
type PiperEngine struct {
	config PiperConfig
	logger *slog.Logger
}

// NewPiperEngine creates a new Piper TTS engine.
func NewPiperEngine(cfg PiperConfig, logger *slog.Logger) (*PiperEngine, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "piper"
	}
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPiperNotFound, cfg.BinaryPath)
	}
	if cfg.ModelPath == "" {
		return nil, ErrNoModelSpecified
	}

	return &PiperEngine{
		config: cfg,
		logger: logger,
	}, nil
}

// Name returns the engine identifier.
func (p *PiperEngine) Name() string {
	return "piper"
}

// Synthesize pipes text through piper and wraps its raw PCM output as WAV.
func (p *PiperEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	args := []string{"--model", p.config.ModelPath, "--output-raw"}
	if speaker := p.speaker(req.Voice); speaker != "" {
		args = append(args, "--speaker", speaker)
	}

	p.logger.Debug("running piper",
		"model", p.config.ModelPath,
		"voice", req.Voice,
		"text_length", len(req.Text),
	)

	cmd := exec.CommandContext(ctx, p.config.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Error("piper failed", "error", err, "stderr", stderr.String())
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio output", ErrSynthesisFailed)
	}

	return &AudioResult{
		Data:       wav.WrapRawPCM(stdout.Bytes(), wav.PiperSampleRate, wav.PiperChannels, wav.PiperBitsPerSample),
		Format:     "wav",
		SampleRate: wav.PiperSampleRate,
		Channels:   wav.PiperChannels,
	}, nil
}

// speaker maps a voice to a piper speaker id. Narrative voices that are not
// numeric (for example an edge voice name reaching piper as the default
// engine) fall back to the configured default speaker.
func (p *PiperEngine) speaker(voice string) string {
	if voice == "" || voice == "default" || strings.Trim(voice, "0123456789") != "" {
		voice = p.config.DefaultVoice
	}
	if voice == "default" {
		return ""
	}
	return voice
}
