package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/player"
	"github.com/hayasaka/discbox/internal/app/resolver"
	"github.com/hayasaka/discbox/internal/app/search"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// resolveTimeout bounds a full resolution pass including strategy
// fallbacks.
const resolveTimeout = 90 * time.Second

func (b *Bot) handlePlay(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, requester, ok := b.interactionContext(event)
	if !ok {
		return
	}
	query := event.SlashCommandInteractionData().String("query")

	if err := event.DeferCreateMessage(false); err != nil {
		zlog.Warn().Msgf("bot: defer failed: error=%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	res, err := b.player.Play(ctx, guildID, userChannel, query, requester)
	if err != nil {
		b.updateWithError(event, err)
		return
	}
	b.updatePanel(event, playText(res))
}

func (b *Bot) handleSearch(event *events.ApplicationCommandInteractionCreate) {
	_, _, requester, ok := b.interactionContext(event)
	if !ok {
		return
	}
	query := event.SlashCommandInteractionData().String("query")

	if err := event.DeferCreateMessage(true); err != nil {
		zlog.Warn().Msgf("bot: defer failed: error=%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	s, err := b.player.Search(ctx, requester.ID, query)
	if err != nil {
		b.updateWithError(event, err)
		return
	}

	upd := searchMessageUpdate(s)
	if _, err := b.client.Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), upd); err != nil {
		zlog.Warn().Msgf("bot: update interaction failed: error=%v", err)
	}
}

func (b *Bot) handlePause(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	if err := b.player.Pause(guildID, userChannel); err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, "Paused.")
}

func (b *Bot) handleResume(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	if err := b.player.Resume(guildID, userChannel); err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, "Resumed.")
}

func (b *Bot) handleSkip(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	skipped, err := b.player.Skip(guildID, userChannel)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, fmt.Sprintf("Skipped **%s**.", skipped.Title))
}

func (b *Bot) handleStop(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.player.Stop(ctx, guildID, userChannel); err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, "Stopped playback and left the channel.")
}

func (b *Bot) handleQueue(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		b.reply(event, "This command only works in a server.")
		return
	}
	view, err := b.player.Queue(*guildID)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.replyPanel(event, queueText(view))
}

func (b *Bot) handleNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		b.reply(event, "This command only works in a server.")
		return
	}
	cur, state, err := b.player.NowPlaying(*guildID)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.replyPanel(event, nowPlayingText(cur, state))
}

func (b *Bot) handleClear(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	n, err := b.player.Clear(guildID, userChannel)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, fmt.Sprintf("Removed %d upcoming track(s).", n))
}

func (b *Bot) handleRemove(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	pos := event.SlashCommandInteractionData().Int("position")
	removed, err := b.player.Remove(guildID, userChannel, pos)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, fmt.Sprintf("Removed **%s** from position %d.", removed.Title, pos))
}

func (b *Bot) handleShuffle(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	if err := b.player.Shuffle(guildID, userChannel); err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, "Shuffled the upcoming tracks.")
}

func (b *Bot) handleLoop(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	enabled, err := b.player.ToggleLoop(guildID, userChannel)
	if err != nil {
		b.replyError(event, err)
		return
	}
	if enabled {
		b.reply(event, "Loop enabled, the current track will replay.")
		return
	}
	b.reply(event, "Loop disabled.")
}

func (b *Bot) handleVolume(event *events.ApplicationCommandInteractionCreate) {
	guildID, userChannel, _, ok := b.interactionContext(event)
	if !ok {
		return
	}
	level := event.SlashCommandInteractionData().Int("level")
	applied, err := b.player.SetVolume(guildID, userChannel, level)
	if err != nil {
		b.replyError(event, err)
		return
	}
	b.reply(event, fmt.Sprintf("Volume set to %d%%.", applied))
}

// interactionContext extracts the guild, the caller's voice channel and
// their requester identity, replying directly when used outside a guild.
func (b *Bot) interactionContext(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, snowflake.ID, track.Requester, bool) {
	guildID := event.GuildID()
	if guildID == nil {
		b.reply(event, "This command only works in a server.")
		return 0, 0, track.Requester{}, false
	}
	user := event.User()
	requester := track.Requester{ID: user.ID, Name: user.EffectiveName()}
	return *guildID, b.voiceChannelOf(*guildID, user.ID), requester, true
}

func (b *Bot) reply(event *events.ApplicationCommandInteractionCreate, content string) {
	if err := event.CreateMessage(discord.NewMessageCreateBuilder().SetContent(content).Build()); err != nil {
		zlog.Warn().Msgf("bot: reply failed: error=%v", err)
	}
}

func (b *Bot) replyPanel(event *events.ApplicationCommandInteractionCreate, content string) {
	msg := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build()
	if err := event.CreateMessage(msg); err != nil {
		zlog.Warn().Msgf("bot: reply failed: error=%v", err)
	}
}

func (b *Bot) replyError(event *events.ApplicationCommandInteractionCreate, err error) {
	zlog.Debug().Msgf("bot: command refused: error=%+v", err)
	b.reply(event, userMessage(err))
}

func (b *Bot) updatePanel(event *events.ApplicationCommandInteractionCreate, content string) {
	upd := discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build()
	if _, err := b.client.Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), upd); err != nil {
		zlog.Warn().Msgf("bot: update interaction failed: error=%v", err)
	}
}

func (b *Bot) updateWithError(event *events.ApplicationCommandInteractionCreate, err error) {
	zlog.Debug().Msgf("bot: command failed: error=%+v", err)
	upd := discord.NewMessageUpdateBuilder().SetContent(userMessage(err)).Build()
	if _, uerr := b.client.Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), upd); uerr != nil {
		zlog.Warn().Msgf("bot: update interaction failed: error=%v", uerr)
	}
}

// userMessage maps service errors to a message fit for the channel.
// Unknown errors stay vague on purpose.
func userMessage(err error) string {
	switch {
	case errors.Is(err, player.ErrNoVoiceChannel):
		return "Join a voice channel first."
	case errors.Is(err, player.ErrNotInSameChannel):
		return "You need to be in the same voice channel as the bot."
	case errors.Is(err, player.ErrNoQueue):
		return "Nothing is playing right now."
	case errors.Is(err, player.ErrDurationExceeded):
		return "That track is too long to play here."
	case errors.Is(err, player.ErrPlaylistAllTooLong):
		return "Every track in that playlist is too long to play here."
	case errors.Is(err, playback.ErrQueueEmpty):
		return "The queue is empty."
	case errors.Is(err, playback.ErrNotPlaying):
		return "Nothing is playing right now."
	case errors.Is(err, playback.ErrNotPaused):
		return "Playback is not paused."
	case errors.Is(err, playback.ErrNotEnoughTracks):
		return "Not enough upcoming tracks to shuffle."
	case errors.Is(err, playback.ErrInvalidPosition):
		return "There is no removable track at that position."
	case errors.Is(err, playback.ErrConnectionDenied):
		return "Could not join your voice channel."
	case errors.Is(err, playback.ErrDestroyed):
		return "That session has already ended."
	case errors.Is(err, resolver.ErrInvalidQuery):
		return "I could not make sense of that query."
	case errors.Is(err, resolver.ErrRestricted):
		return "That track is age restricted or not available in this region."
	case errors.Is(err, resolver.ErrNotFound):
		return "No results found."
	case errors.Is(err, resolver.ErrShortForm):
		return "Short form clips are not playable here, try the full track."
	case errors.Is(err, resolver.ErrTimeout):
		return "The track source took too long to respond, try again."
	case errors.Is(err, resolver.ErrUnavailable):
		return "That track cannot be played right now."
	case errors.Is(err, search.ErrSessionExpired):
		return "That search has expired, run /search again."
	case errors.Is(err, search.ErrSessionUnauthorized):
		return "Only the person who searched can use these buttons."
	case errors.Is(err, search.ErrNoMorePages):
		return "There are no more pages."
	case errors.Is(err, search.ErrInvalidSelection):
		return "That result does not exist."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long, try again."
	default:
		return "Something went wrong, try again in a moment."
	}
}
