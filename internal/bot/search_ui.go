package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayasaka/discbox/internal/app/search"
	"github.com/hayasaka/discbox/internal/domain/track"
)

// Search component custom ids:
//
//	search:sel:<session>:<index>  queue the result at the absolute index
//	search:prev:<session>         previous page
//	search:next:<session>         next page
//	search:cancel:<session>       discard the session
func isSearchComponent(customID string) bool {
	return strings.HasPrefix(customID, "search:")
}

func (b *Bot) handleSearchComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) < 3 {
		return
	}
	action, sessionID := parts[1], parts[2]

	guildID := event.GuildID()
	if guildID == nil {
		return
	}
	user := event.User()

	switch action {
	case "prev", "next":
		delta := 1
		if action == "prev" {
			delta = -1
		}
		s, err := b.player.PaginateSearch(sessionID, user.ID, delta)
		if err != nil {
			b.componentError(event, err)
			return
		}
		if err := event.UpdateMessage(searchMessageUpdate(s)); err != nil {
			zlog.Warn().Msgf("bot: search page update failed: error=%v", err)
		}

	case "cancel":
		if err := b.player.CancelSearch(sessionID, user.ID); err != nil {
			b.componentError(event, err)
			return
		}
		b.updateComponentPanel(event, "Search cancelled.")

	case "sel":
		if len(parts) < 4 {
			return
		}
		index, err := strconv.Atoi(parts[3])
		if err != nil {
			return
		}
		requester := track.Requester{ID: user.ID, Name: user.EffectiveName()}
		userChannel := b.voiceChannelOf(*guildID, user.ID)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := b.player.SelectSearchResult(ctx, *guildID, userChannel, sessionID, user.ID, index, requester)
		if err != nil {
			b.componentError(event, err)
			return
		}
		b.updateComponentPanel(event, playText(res))
	}
}

func (b *Bot) updateComponentPanel(event *events.ComponentInteractionCreate, content string) {
	upd := discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(discord.NewContainer(discord.NewTextDisplay(content))).
		Build()
	if err := event.UpdateMessage(upd); err != nil {
		zlog.Warn().Msgf("bot: search panel update failed: error=%v", err)
	}
}

// componentError answers ephemerally so a stranger's click never
// clobbers the owner's result message.
func (b *Bot) componentError(event *events.ComponentInteractionCreate, err error) {
	zlog.Debug().Msgf("bot: search component refused: error=%+v", err)
	msg := discord.NewMessageCreateBuilder().
		SetContent(userMessage(err)).
		SetEphemeral(true).
		Build()
	if cerr := event.CreateMessage(msg); cerr != nil {
		zlog.Warn().Msgf("bot: component reply failed: error=%v", cerr)
	}
}

func searchMessageUpdate(s *search.Session) discord.MessageUpdate {
	start := s.CurrentPage * search.PageSize
	var selects []discord.InteractiveComponent
	for i := range s.Page() {
		abs := start + i
		selects = append(selects, discord.NewPrimaryButton(
			fmt.Sprintf("%d", abs+1),
			fmt.Sprintf("search:sel:%s:%d", s.ID, abs),
		))
	}

	prev := discord.NewSecondaryButton("Prev", fmt.Sprintf("search:prev:%s", s.ID)).
		WithDisabled(s.CurrentPage == 0)
	next := discord.NewSecondaryButton("Next", fmt.Sprintf("search:next:%s", s.ID)).
		WithDisabled(s.CurrentPage >= s.PageCount()-1)
	cancel := discord.NewDangerButton("Cancel", fmt.Sprintf("search:cancel:%s", s.ID))

	container := discord.NewContainer(
		discord.NewTextDisplay(searchPageText(s)),
		discord.NewActionRow(selects...),
		discord.NewActionRow(prev, next, cancel),
	)
	return discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(container).
		Build()
}

func searchPageText(s *search.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results\nResults for **%s** (page %d/%d):\n\n", s.Query, s.CurrentPage+1, s.PageCount())
	start := s.CurrentPage * search.PageSize
	for i, t := range s.Page() {
		label := track.FormatDuration(t.Duration)
		if t.Duration <= 0 {
			label = "?:??"
		}
		fmt.Fprintf(&sb, "`%d.` [%s](%s)", start+i+1, t.Title, t.URL)
		if t.Uploader != "" {
			fmt.Fprintf(&sb, " by %s", t.Uploader)
		}
		fmt.Fprintf(&sb, " `%s`\n", label)
	}
	return sb.String()
}
