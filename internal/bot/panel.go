package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/playback"
	"github.com/hayasaka/discbox/internal/app/player"
)

// panelRefreshInterval is how often bound panels re-render on their own,
// so track changes show up without anyone pressing a button.
const panelRefreshInterval = 10 * time.Second

// Panel component custom ids:
//
//	panel:toggle   pause or resume depending on state
//	panel:skip     skip the current track
//	panel:stop     stop playback and leave
//	panel:shuffle  shuffle the upcoming tracks
//	panel:loop     toggle loop mode
//	panel:refresh  re-render without touching playback
func isPanelComponent(customID string) bool {
	return strings.HasPrefix(customID, "panel:")
}

type panelBinding struct {
	channelID snowflake.ID
	messageID snowflake.ID
}

// panelStore holds at most one control panel binding per guild.
type panelStore struct {
	mu       sync.Mutex
	bindings map[snowflake.ID]panelBinding
}

func newPanelStore() *panelStore {
	return &panelStore{bindings: map[snowflake.ID]panelBinding{}}
}

func (s *panelStore) bind(guildID snowflake.ID, bd panelBinding) (prev panelBinding, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, replaced = s.bindings[guildID]
	s.bindings[guildID] = bd
	return prev, replaced
}

func (s *panelStore) unbind(guildID snowflake.ID) (panelBinding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.bindings[guildID]
	delete(s.bindings, guildID)
	return bd, ok
}

func (s *panelStore) all() map[snowflake.ID]panelBinding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[snowflake.ID]panelBinding, len(s.bindings))
	for g, bd := range s.bindings {
		out[g] = bd
	}
	return out
}

func (b *Bot) handleBind(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		b.reply(event, "This command only works in a server.")
		return
	}
	channelID := event.Channel().ID()

	if err := event.DeferCreateMessage(true); err != nil {
		zlog.Warn().Msgf("bot: defer failed: error=%v", err)
		return
	}

	msg, err := b.client.Rest.CreateMessage(channelID, panelMessageCreate(b.queueView(*guildID)))
	if err != nil {
		zlog.Warn().Msgf("bot: panel create failed: guild=%s channel=%s error=%v", *guildID, channelID, err)
		b.updateWithError(event, err)
		return
	}

	prev, replaced := b.panels.bind(*guildID, panelBinding{channelID: channelID, messageID: msg.ID})
	if replaced {
		if derr := b.client.Rest.DeleteMessage(prev.channelID, prev.messageID); derr != nil {
			zlog.Debug().Msgf("bot: stale panel delete failed: guild=%s error=%v", *guildID, derr)
		}
	}

	zlog.Info().Msgf("bot: control panel bound: guild=%s channel=%s", *guildID, channelID)
	upd := discord.NewMessageUpdateBuilder().
		SetContent("Control panel bound to this channel. It refreshes on its own.").
		Build()
	if _, err := b.client.Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), upd); err != nil {
		zlog.Warn().Msgf("bot: update interaction failed: error=%v", err)
	}
}

func (b *Bot) handleUnbind(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		b.reply(event, "This command only works in a server.")
		return
	}

	bd, ok := b.panels.unbind(*guildID)
	if !ok {
		b.reply(event, "No control panel is bound in this server.")
		return
	}
	if err := b.client.Rest.DeleteMessage(bd.channelID, bd.messageID); err != nil {
		zlog.Debug().Msgf("bot: panel delete failed: guild=%s error=%v", *guildID, err)
	}
	zlog.Info().Msgf("bot: control panel unbound: guild=%s", *guildID)
	b.reply(event, "Control panel unbound.")
}

func (b *Bot) handlePanelComponent(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}
	action := strings.TrimPrefix(event.Data.CustomID(), "panel:")
	user := event.User()
	userChannel := b.voiceChannelOf(*guildID, user.ID)

	var err error
	switch action {
	case "toggle":
		view := b.queueView(*guildID)
		if view != nil && view.State == playback.StatePaused {
			err = b.player.Resume(*guildID, userChannel)
		} else {
			err = b.player.Pause(*guildID, userChannel)
		}
	case "skip":
		_, err = b.player.Skip(*guildID, userChannel)
	case "stop":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = b.player.Stop(ctx, *guildID, userChannel)
		cancel()
	case "shuffle":
		err = b.player.Shuffle(*guildID, userChannel)
	case "loop":
		_, err = b.player.ToggleLoop(*guildID, userChannel)
	case "refresh":
	default:
		return
	}
	if err != nil {
		b.componentError(event, err)
		return
	}
	if uerr := event.UpdateMessage(panelMessageUpdate(b.queueView(*guildID))); uerr != nil {
		zlog.Warn().Msgf("bot: panel update failed: guild=%s error=%v", *guildID, uerr)
	}
}

// runPanelRefresh re-renders every bound panel on a fixed interval until
// the context ends.
func (b *Bot) runPanelRefresh(ctx context.Context) {
	ticker := time.NewTicker(panelRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for guildID, bd := range b.panels.all() {
				upd := panelMessageUpdate(b.queueView(guildID))
				if _, err := b.client.Rest.UpdateMessage(bd.channelID, bd.messageID, upd); err != nil {
					zlog.Debug().Msgf("bot: panel refresh failed: guild=%s error=%v", guildID, err)
				}
			}
		}
	}
}

// queueView returns the guild's queue snapshot, or nil when no queue
// exists.
func (b *Bot) queueView(guildID snowflake.ID) *player.QueueView {
	view, err := b.player.Queue(guildID)
	if err != nil {
		return nil
	}
	return view
}

func panelMessageCreate(view *player.QueueView) discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(panelContainer(view)).
		Build()
}

func panelMessageUpdate(view *player.QueueView) discord.MessageUpdate {
	return discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(panelContainer(view)).
		Build()
}

func panelContainer(view *player.QueueView) discord.ContainerComponent {
	idle := view == nil || view.Current == nil

	toggleLabel := "Pause"
	if !idle && view.State == playback.StatePaused {
		toggleLabel = "Resume"
	}
	toggle := discord.NewPrimaryButton(toggleLabel, "panel:toggle").WithDisabled(idle)
	skip := discord.NewSecondaryButton("Skip", "panel:skip").WithDisabled(idle)
	stop := discord.NewDangerButton("Stop", "panel:stop").WithDisabled(view == nil)

	shuffle := discord.NewSecondaryButton("Shuffle", "panel:shuffle").WithDisabled(view == nil)
	loopStyle := discord.NewSecondaryButton
	if view != nil && view.Loop {
		loopStyle = discord.NewPrimaryButton
	}
	loop := loopStyle("Loop", "panel:loop").WithDisabled(view == nil)
	refresh := discord.NewSecondaryButton("Refresh", "panel:refresh")

	return discord.NewContainer(
		discord.NewTextDisplay(panelText(view)),
		discord.NewActionRow(toggle, skip, stop),
		discord.NewActionRow(shuffle, loop, refresh),
	)
}

func panelText(view *player.QueueView) string {
	var sb strings.Builder
	sb.WriteString("## Control panel\n")
	if view == nil || view.Current == nil {
		sb.WriteString("Nothing is playing. Use /play or /search to queue a track.")
		return sb.String()
	}

	marker := "Now playing"
	if view.State == playback.StatePaused {
		marker = "Paused"
	}
	fmt.Fprintf(&sb, "%s: [%s](%s) `%s`", marker, view.Current.Title, view.Current.URL, durationLabel(view.Current))
	if view.Current.RequestedBy.Name != "" {
		fmt.Fprintf(&sb, "\nRequested by %s", view.Current.RequestedBy.Name)
	}

	upcoming := len(view.Tracks)
	if upcoming > 0 {
		upcoming--
	}
	fmt.Fprintf(&sb, "\n\n%d upcoming | Volume %d%%", upcoming, view.Volume)
	if view.Loop {
		sb.WriteString(" | Loop on")
	}
	return sb.String()
}
