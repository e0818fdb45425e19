package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/narrator-go/internal/audio"
	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// voiceChannel is the part of VoiceManager the Player drives.
type voiceChannel interface {
	Connect(ctx context.Context) error
	SendAudio(ctx context.Context, pcm []byte) error
}

// Player plays audio units into the voice channel, joining it on demand.
type Player struct {
	voice  voiceChannel
	conv   audio.PCMConverter
	logger *slog.Logger
}

// NewPlayer creates a voice-channel player.
func NewPlayer(vm *VoiceManager, conv audio.PCMConverter, logger *slog.Logger) *Player {
	return &Player{voice: vm, conv: conv, logger: logger}
}

// Play converts unit to Discord PCM and sends it, blocking until it has
// been sent or ctx ends.
func (p *Player) Play(ctx context.Context, unit *tts.AudioResult) error {
	pcm, err := p.conv.ToPCM(ctx, unit.Data, audio.DiscordFormat)
	if err != nil {
		return fmt.Errorf("convert for discord: %w", err)
	}

	if err := p.voice.Connect(ctx); err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	if err := p.voice.SendAudio(ctx, pcm); err != nil {
		if errors.Is(err, context.Canceled) {
			p.logger.Info("discord playback interrupted")
		}
		return err
	}
	return nil
}
