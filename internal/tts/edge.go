package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/dgnsrekt/narrator-go/internal/wav"
)

// edgeDecoderChannels is the channel count go-mp3 always decodes to.
const edgeDecoderChannels = 2

// EdgeEngine synthesizes with Microsoft Edge online TTS. The service returns
// MP3, which is decoded to PCM and wrapped as WAV so every engine hands the
// sinks the same format.
type EdgeEngine struct {
	defaultVoice string
	logger       *slog.Logger
}

// NewEdgeEngine creates an Edge engine. defaultVoice is used for empty or
// "default" voices, e.g. "en-US-GuyNeural".
func NewEdgeEngine(defaultVoice string, logger *slog.Logger) *EdgeEngine {
	return &EdgeEngine{defaultVoice: defaultVoice, logger: logger}
}

// Name returns the engine identifier.
func (e *EdgeEngine) Name() string {
	return "edge"
}

// Synthesize streams MP3 from the service and decodes it.
func (e *EdgeEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	voice := req.Voice
	if voice == "" || voice == "default" {
		voice = e.defaultVoice
	}

	e.logger.Debug("requesting edge synthesis", "voice", voice, "text_length", len(req.Text))

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	stream, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	var buf bytes.Buffer
collect:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				break collect
			}
			if kind, _ := msg["type"].(string); kind != "audio" {
				continue
			}
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}

	mp3Data := buf.Bytes()
	if len(mp3Data) == 0 {
		return nil, fmt.Errorf("%w: no audio received for voice %q", ErrSynthesisFailed, voice)
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp3: %v", ErrSynthesisFailed, err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp3: %v", ErrSynthesisFailed, err)
	}
	// Drop a trailing partial frame.
	pcm = pcm[:len(pcm)/(2*edgeDecoderChannels)*(2*edgeDecoderChannels)]

	rate := decoder.SampleRate()
	return &AudioResult{
		Data:       wav.WrapRawPCM(pcm, rate, edgeDecoderChannels, 16),
		Format:     "wav",
		SampleRate: rate,
		Channels:   edgeDecoderChannels,
	}, nil
}
