package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
)

var manageChannels = discord.PermissionManageChannels

var commands = []discord.ApplicationCommandCreate{
	discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a track from a URL, playlist URL or search query",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: "URL or search terms",
				Required:    true,
			},
		},
	},
	discord.SlashCommandCreate{
		Name:        "search",
		Description: "Search for tracks and pick one from the results",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: "Search terms",
				Required:    true,
			},
		},
	},
	discord.SlashCommandCreate{
		Name:        "pause",
		Description: "Pause the current track",
	},
	discord.SlashCommandCreate{
		Name:        "resume",
		Description: "Resume a paused track",
	},
	discord.SlashCommandCreate{
		Name:        "skip",
		Description: "Skip the current track",
	},
	discord.SlashCommandCreate{
		Name:        "stop",
		Description: "Stop playback, clear the queue and leave",
	},
	discord.SlashCommandCreate{
		Name:        "queue",
		Description: "Show the current queue",
	},
	discord.SlashCommandCreate{
		Name:        "nowplaying",
		Description: "Show the track playing right now",
	},
	discord.SlashCommandCreate{
		Name:        "clear",
		Description: "Remove every upcoming track",
	},
	discord.SlashCommandCreate{
		Name:        "remove",
		Description: "Remove one upcoming track by its queue position",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "position",
				Description: "Queue position as shown by /queue (2 or higher)",
				Required:    true,
			},
		},
	},
	discord.SlashCommandCreate{
		Name:        "shuffle",
		Description: "Shuffle the upcoming tracks",
	},
	discord.SlashCommandCreate{
		Name:        "loop",
		Description: "Toggle looping of the current track",
	},
	discord.SlashCommandCreate{
		Name:                     "bind",
		Description:              "Bind the music control panel to this channel",
		DefaultMemberPermissions: omit.New(&manageChannels),
	},
	discord.SlashCommandCreate{
		Name:                     "unbind",
		Description:              "Remove the music control panel from this server",
		DefaultMemberPermissions: omit.New(&manageChannels),
	},
	discord.SlashCommandCreate{
		Name:        "volume",
		Description: "Set the playback volume",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "level",
				Description: "Volume from 0 to 100",
				Required:    true,
			},
		},
	},
}

var commandHandlers = map[string]func(b *Bot, event *events.ApplicationCommandInteractionCreate){
	"play":       (*Bot).handlePlay,
	"search":     (*Bot).handleSearch,
	"pause":      (*Bot).handlePause,
	"resume":     (*Bot).handleResume,
	"skip":       (*Bot).handleSkip,
	"stop":       (*Bot).handleStop,
	"queue":      (*Bot).handleQueue,
	"nowplaying": (*Bot).handleNowPlaying,
	"clear":      (*Bot).handleClear,
	"remove":     (*Bot).handleRemove,
	"shuffle":    (*Bot).handleShuffle,
	"loop":       (*Bot).handleLoop,
	"volume":     (*Bot).handleVolume,
	"bind":       (*Bot).handleBind,
	"unbind":     (*Bot).handleUnbind,
}
