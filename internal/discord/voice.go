// Package discord speaks narration into a Discord voice channel.
package discord

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/dgnsrekt/narrator-go/internal/audio"
)

const (
	// voiceConnectTimeout bounds the wait for a voice connection to be ready.
	voiceConnectTimeout = 10 * time.Second
	// voiceConnectPollInterval is the polling interval while waiting.
	voiceConnectPollInterval = 100 * time.Millisecond
	// frameDuration is the duration of one Discord audio frame.
	frameDuration = 20 * time.Millisecond
	// maxOpusDataBytes is the maximum size of an encoded Opus frame.
	maxOpusDataBytes = 4000
)

var (
	// ErrNotConnected is returned when sending audio while not connected.
	ErrNotConnected = errors.New("not connected to voice channel")
	// ErrConnectionFailed is returned when the voice connection never became ready.
	ErrConnectionFailed = errors.New("failed to connect to voice channel")
)

// VoiceManager owns the bot session and its single voice connection.
type VoiceManager struct {
	mu        sync.Mutex
	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	encoder   *gopus.Encoder
	logger    *slog.Logger
}

// NewVoiceManager creates a manager for one guild voice channel.
func NewVoiceManager(token, guildID, channelID string, logger *slog.Logger) (*VoiceManager, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	encoder, err := gopus.NewEncoder(audio.DiscordSampleRate, audio.DiscordChannels, gopus.Voip)
	if err != nil {
		return nil, err
	}

	return &VoiceManager{
		session:   session,
		guildID:   guildID,
		channelID: channelID,
		encoder:   encoder,
		logger:    logger,
	}, nil
}

// Open opens the Discord gateway session.
func (vm *VoiceManager) Open() error {
	return vm.session.Open()
}

// Close leaves voice and closes the session.
func (vm *VoiceManager) Close() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.vc != nil {
		vm.vc.Disconnect()
		vm.vc = nil
	}
	return vm.session.Close()
}

// Connect joins the configured voice channel if not already in it.
func (vm *VoiceManager) Connect(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.vc != nil {
		return nil
	}

	vm.logger.Info("connecting to voice channel", "guild_id", vm.guildID, "channel_id", vm.channelID)

	// Deafened: the narrator never listens.
	vc, err := vm.session.ChannelVoiceJoin(vm.guildID, vm.channelID, false, true)
	if err != nil {
		return err
	}

	deadline := time.NewTimer(voiceConnectTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(voiceConnectPollInterval)
	defer poll.Stop()

	for !vc.Ready {
		select {
		case <-ctx.Done():
			vc.Disconnect()
			return ctx.Err()
		case <-deadline.C:
			vc.Disconnect()
			return ErrConnectionFailed
		case <-poll.C:
		}
	}

	vm.vc = vc
	vm.logger.Info("connected to voice channel")
	return nil
}

// Disconnect leaves the voice channel. It is a no-op when not connected.
func (vm *VoiceManager) Disconnect() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.vc == nil {
		return nil
	}
	vm.logger.Info("disconnecting from voice channel")
	err := vm.vc.Disconnect()
	vm.vc = nil
	return err
}

// IsConnected reports whether the bot is in the voice channel.
func (vm *VoiceManager) IsConnected() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.vc != nil
}

// SendAudio streams 48kHz stereo 16-bit PCM to the channel in real time and
// returns when it has all been sent or ctx ends.
func (vm *VoiceManager) SendAudio(ctx context.Context, pcm []byte) error {
	vm.mu.Lock()
	vc := vm.vc
	vm.mu.Unlock()

	if vc == nil {
		return ErrNotConnected
	}

	if err := vc.Speaking(true); err != nil {
		vm.logger.Error("failed to set speaking state", "error", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			vm.logger.Error("failed to clear speaking state", "error", err)
		}
	}()

	return streamFrames(ctx, audio.NewPCMFrameReader(pcm), frameDuration, vm.encodeOpus,
		func(ctx context.Context, opus []byte) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case vc.OpusSend <- opus:
				return nil
			}
		}, vm.logger)
}

// streamFrames paces frames out one per tick, encoding each before sending.
// Frames that fail to encode are dropped.
func streamFrames(
	ctx context.Context,
	frames *audio.PCMFrameReader,
	interval time.Duration,
	encode func([]byte) ([]byte, error),
	send func(context.Context, []byte) error,
	logger *slog.Logger,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := frames.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		opus, err := encode(frame)
		if err != nil {
			logger.Error("opus encoding failed", "error", err)
			continue
		}
		if err := send(ctx, opus); err != nil {
			return err
		}
	}
}

// encodeOpus encodes one 20ms stereo PCM frame.
func (vm *VoiceManager) encodeOpus(pcm []byte) ([]byte, error) {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return vm.encoder.Encode(samples, audio.DiscordFrameSize, maxOpusDataBytes)
}
