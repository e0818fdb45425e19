package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/narrator-go/internal/audio"
	"github.com/dgnsrekt/narrator-go/internal/config"
	"github.com/dgnsrekt/narrator-go/internal/discord"
	"github.com/dgnsrekt/narrator-go/internal/feed"
	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/observe"
	"github.com/dgnsrekt/narrator-go/internal/playback"
	"github.com/dgnsrekt/narrator-go/internal/roster"
	"github.com/dgnsrekt/narrator-go/internal/tts"
)

// newProvider is replaced in tests to observe provider shutdown.
var newProvider = observe.NewProvider

// pipeline is the assembled narration stack.
type pipeline struct {
	narrator *playback.Narrator
	voice    *discord.VoiceManager
	metrics  *observe.Metrics
	provider *observe.Provider
}

func (p *pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.voice != nil {
		errs = append(errs, p.voice.Close())
	}
	if p.provider != nil {
		errs = append(errs, p.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// abort releases whatever was built before err and returns err.
func (p *pipeline) abort(err error) error {
	if cerr := p.Close(context.Background()); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func voicesFrom(cfg *config.Config) narrative.Voices {
	return narrative.Voices{
		Narrator: cfg.NarratorVoice,
		Player:   cfg.PlayerVoice,
		Male:     cfg.DefaultMaleVoice,
		Female:   cfg.DefaultFemaleVoice,
	}
}

// rosterSource returns the configured roster, or an empty one.
func rosterSource(cfg *config.Config) roster.Source {
	if cfg.RosterFile == "" {
		return roster.NewStaticSource(nil, nil)
	}
	return roster.NewFileSource(cfg.RosterFile)
}

func newSegmenter(cfg *config.Config, metrics *observe.Metrics) *narrative.Segmenter {
	var matcher narrative.NameMatcher
	if cfg.FuzzyNames {
		matcher = narrative.NewFuzzyMatcher()
	}
	seg := narrative.NewSegmenter(voicesFrom(cfg), cfg.MaxSegmentLength, matcher)
	if metrics != nil {
		seg.SetAttributionHook(func(a narrative.Attribution) {
			metrics.RecordRule(context.Background(), string(a.Rule))
		})
	}
	return seg
}

// buildEngine registers the configured engine, plus Edge as a secondary
// engine for "edge:" voices, behind the synthesis cache.
func buildEngine(cfg *config.Config, logger *slog.Logger) (tts.Engine, error) {
	registry := tts.NewRegistry()

	switch cfg.TTSEngine {
	case config.EnginePiper:
		piper, err := tts.NewPiperEngine(tts.PiperConfig{
			BinaryPath:   cfg.PiperPath,
			ModelPath:    cfg.PiperModel,
			DefaultVoice: "0",
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("piper engine: %w", err)
		}
		if err := registry.Register(piper); err != nil {
			return nil, err
		}
		if err := registry.Register(tts.NewEdgeEngine(cfg.NarratorVoice, logger)); err != nil {
			return nil, err
		}
	case config.EngineEdge:
		if err := registry.Register(tts.NewEdgeEngine(cfg.NarratorVoice, logger)); err != nil {
			return nil, err
		}
	default:
		if err := registry.Register(tts.SilentEngine{}); err != nil {
			return nil, err
		}
	}
	logger.Info("tts engines registered", "engines", registry.List())

	if cfg.SynthCacheSize < 1 {
		return registry, nil
	}
	return tts.NewCachedEngine(registry, cfg.SynthCacheSize)
}

// buildSink opens the configured playback sink. The voice manager is
// returned for the discord sink so callers can manage the connection.
func buildSink(cfg *config.Config, logger *slog.Logger) (playback.Player, *discord.VoiceManager, error) {
	switch cfg.PlaybackSink {
	case config.SinkLog:
		return playback.NewLogPlayer(true, logger), nil, nil
	case config.SinkSpeaker:
		conv, err := audio.NewConverter()
		if err != nil {
			return nil, nil, err
		}
		speaker, err := audio.NewSpeaker(conv, logger)
		if err != nil {
			return nil, nil, err
		}
		return speaker, nil, nil
	default:
		if err := cfg.ValidateDiscord(); err != nil {
			return nil, nil, err
		}
		conv, err := audio.NewConverter()
		if err != nil {
			return nil, nil, err
		}
		vm, err := discord.NewVoiceManager(cfg.DiscordToken, cfg.GuildID, cfg.DefaultVoiceChannelID, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create voice manager: %w", err)
		}
		if err := vm.Open(); err != nil {
			return nil, nil, fmt.Errorf("open discord session: %w", err)
		}
		logger.Info("discord session opened")
		return discord.NewPlayer(vm, conv, logger), vm, nil
	}
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}
	if cfg.MetricsEnabled {
		provider, err := newProvider()
		if err != nil {
			return nil, fmt.Errorf("metrics provider: %w", err)
		}
		p.provider = provider
		if p.metrics, err = provider.Metrics(); err != nil {
			return nil, p.abort(fmt.Errorf("metrics: %w", err))
		}
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, p.abort(err)
	}
	sink, vm, err := buildSink(cfg, logger)
	if err != nil {
		return nil, p.abort(err)
	}
	p.voice = vm

	coord := playback.NewCoordinator(engine, sink, cfg.SynthesisTimeout, logger)
	coord.SetMetrics(p.metrics)
	p.narrator = playback.NewNarrator(
		rosterSource(cfg),
		newSegmenter(cfg, p.metrics),
		narrative.NewState(),
		coord,
		logger,
	)
	return p, nil
}

// newFeed returns the ntfy subscriber, or nil when no topics are configured.
func newFeed(cfg *config.Config, sink feed.Enqueuer, metrics *observe.Metrics, logger *slog.Logger) *feed.Subscriber {
	topics := cfg.FeedTopics()
	if len(topics) == 0 {
		return nil
	}
	sub := feed.NewSubscriber(feed.Config{
		Server:        cfg.NtfyServer,
		Topics:        topics,
		Prefix:        cfg.NtfyPrefix,
		Interrupt:     cfg.NtfyInterrupt,
		TTL:           cfg.DefaultTTL,
		DedupeWindow:  cfg.NtfyDedupeWindow,
		MaxTextLength: cfg.MaxTextLength,
	}, sink, logger.With("component", "feed"))
	if metrics != nil {
		sub.SetMetrics(metrics)
	}
	return sub
}
