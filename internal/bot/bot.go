// Package bot wires the Discord gateway to the player: slash commands,
// search result components and voice state tracking.
package bot

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	disbot "github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/player"
	"github.com/hayasaka/discbox/internal/app/reaper"
	"github.com/hayasaka/discbox/internal/app/resolver"
	"github.com/hayasaka/discbox/internal/app/search"
	"github.com/hayasaka/discbox/internal/infra/config"
	"github.com/hayasaka/discbox/internal/infra/dvoice"
)

// Bot owns the gateway client and the playback services behind it.
type Bot struct {
	client   *disbot.Client
	cfg      *config.Config
	player   *player.Manager
	reaper   *reaper.Reaper
	sessions *search.Manager
	panels   *panelStore

	cancelSweep context.CancelFunc
}

// New builds the client and the full service graph behind it.
func New(cfg *config.Config) (*Bot, error) {
	b := &Bot{cfg: cfg, panels: newPanelStore()}

	client, err := disgo.New(cfg.Discord.Token,
		disbot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
		),
		disbot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagMembers, cache.FlagVoiceStates),
		),
		disbot.WithEventListenerFunc(b.onApplicationCommand),
		disbot.WithEventListenerFunc(b.onComponent),
		disbot.WithEventListenerFunc(b.onVoiceStateUpdate),
		disbot.WithEventListenerFunc(b.onReady),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create discord client")
	}
	b.client = client

	res, err := resolver.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	b.sessions = search.NewManager(cfg.SessionTTL())
	b.player = player.New(res, dvoice.NewConnector(client), b.sessions, player.Config{
		DefaultVolume:   cfg.Playback.DefaultVolume,
		MaxSongDuration: cfg.MaxSongDuration(),
		AdvanceDelay:    cfg.AdvanceDelay(),
	})
	b.reaper = reaper.New(b, b.player, cfg.GracePeriod())
	return b, nil
}

// Start syncs the command set and opens the gateway.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.syncCommands(ctx); err != nil {
		return err
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	b.cancelSweep = cancel
	go b.sessions.Run(sweepCtx)
	go b.runPanelRefresh(sweepCtx)

	return errors.Wrap(b.client.OpenGateway(ctx), "open gateway")
}

// Close tears everything down in dependency order: playback first so the
// voice connections say goodbye before the gateway drops.
func (b *Bot) Close(ctx context.Context) {
	if b.cancelSweep != nil {
		b.cancelSweep()
	}
	b.reaper.Shutdown()
	b.player.Shutdown(ctx)
	b.client.Close(ctx)
}

func (b *Bot) syncCommands(ctx context.Context) error {
	if guildID := b.cfg.CommandGuildID(); guildID != 0 {
		zlog.Info().Msgf("bot: registering guild commands: guild=%s", guildID)
		_, err := b.client.Rest.SetGuildCommands(b.client.ApplicationID, guildID, commands)
		return errors.Wrap(err, "set guild commands")
	}
	zlog.Info().Msg("bot: registering global commands")
	_, err := b.client.Rest.SetGlobalCommands(b.client.ApplicationID, commands)
	return errors.Wrap(err, "set global commands")
}

func (b *Bot) onReady(event *events.Ready) {
	zlog.Info().Msgf("bot: gateway ready: user=%s id=%s", event.User.Username, event.User.ID)
}

func (b *Bot) onApplicationCommand(event *events.ApplicationCommandInteractionCreate) {
	name := event.Data.CommandName()
	h, ok := commandHandlers[name]
	if !ok {
		return
	}
	go func() {
		defer b.recoverInteraction("command " + name)
		h(b, event)
	}()
}

func (b *Bot) onComponent(event *events.ComponentInteractionCreate) {
	customID := event.Data.CustomID()
	var h func(*events.ComponentInteractionCreate)
	switch {
	case isSearchComponent(customID):
		h = b.handleSearchComponent
	case isPanelComponent(customID):
		h = b.handlePanelComponent
	default:
		return
	}
	go func() {
		defer b.recoverInteraction("component " + customID)
		h(event)
	}()
}

// onVoiceStateUpdate feeds the reaper and reacts to the bot itself being
// kicked or moved out of its channel.
func (b *Bot) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID

	if event.VoiceState.UserID == b.client.ID() {
		if event.VoiceState.ChannelID == nil {
			zlog.Info().Msgf("bot: disconnected from voice externally: guild=%s", guildID)
			b.reaper.Cancel(guildID)
			go func() {
				defer b.recoverInteraction("external disconnect")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := b.player.Destroy(ctx, guildID); err != nil {
					zlog.Error().Msgf("bot: destroy after disconnect failed: guild=%s error=%+v", guildID, err)
				}
			}()
		}
		return
	}

	channelID, ok := b.player.ChannelID(guildID)
	if !ok {
		return
	}
	b.reaper.Observe(guildID, channelID)
}

// HumanCount counts non-bot members in a voice channel. Members missing
// from the cache are assumed human.
func (b *Bot) HumanCount(guildID, channelID snowflake.ID) int {
	count := 0
	for state := range b.client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == b.client.ID() {
			continue
		}
		if m, ok := b.client.Caches.Member(guildID, state.UserID); !ok || !m.User.Bot {
			count++
		}
	}
	return count
}

// voiceChannelOf returns the voice channel a user currently sits in, or
// zero when they are not in voice.
func (b *Bot) voiceChannelOf(guildID, userID snowflake.ID) snowflake.ID {
	vs, ok := b.client.Caches.VoiceState(guildID, userID)
	if !ok || vs.ChannelID == nil {
		return 0
	}
	return *vs.ChannelID
}

func (b *Bot) recoverInteraction(what string) {
	if r := recover(); r != nil {
		zlog.Error().Msgf("bot: panic in %s: %v\n%s", what, r, debug.Stack())
	}
}
