// Package ytdl wraps the yt-dlp binary for metadata extraction, direct
// stream URL resolution, playlist listing and ranked search.
package ytdl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// Errors classified from yt-dlp output.
var (
	ErrUnavailable = errors.New("ytdl: video unavailable")
	ErrRestricted  = errors.New("ytdl: video is private, drm or region blocked")
	ErrNotFound    = errors.New("ytdl: video not found")
	ErrNoOutput    = errors.New("ytdl: no parseable output")
)

// Entry is one flat-playlist or search result line.
type Entry struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// Media is fully extracted metadata including a direct stream URL.
type Media struct {
	StreamURL    string
	Title        string
	Uploader     string
	ThumbnailURL string
	Duration     time.Duration
}

// Config represents yt-dlp client configuration.
type Config struct {
	Proxy        string // Forward proxy for all extractor traffic (optional)
	PlayerClient string // youtube player_client extractor arg
	SocketTimeoutSec int
	Retries          int
}

// Client shells out to yt-dlp. The binary must be on PATH.
type Client struct {
	cfg Config
}

// New creates a new yt-dlp client.
func New(cfg Config) *Client {
	if cfg.PlayerClient == "" {
		cfg.PlayerClient = "android,web"
	}
	if cfg.SocketTimeoutSec <= 0 {
		cfg.SocketTimeoutSec = 30
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 10
	}
	return &Client{cfg: cfg}
}

func (c *Client) newCommand() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()
	if c.cfg.Proxy != "" {
		cmd.Proxy(c.cfg.Proxy)
	}
	return cmd
}

func (c *Client) commonArgs(playlist bool) []string {
	args := []string{
		"--no-check-certificates",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=" + c.cfg.PlayerClient,
		"--prefer-free-formats",
		"--socket-timeout", fmt.Sprintf("%d", c.cfg.SocketTimeoutSec),
		"--retries", fmt.Sprintf("%d", c.cfg.Retries),
	}
	if playlist {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	return args
}

// FetchMedia extracts metadata and a direct audio stream URL for a video
// page URL.
func (c *Client) FetchMedia(ctx context.Context, pageURL string) (*Media, error) {
	res, err := c.newCommand().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s").
		Format("bestaudio[ext=webm]/bestaudio").
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(c.commonArgs(false), "--skip-download", pageURL)...)
	if err != nil {
		return nil, classify(res, err)
	}

	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 5 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		return &Media{
			StreamURL:    ps[0],
			Title:        ps[1],
			Uploader:     ps[2],
			Duration:     d,
			ThumbnailURL: ps[4],
		}, nil
	}
	return nil, ErrNoOutput
}

// Search runs a ranked search. music switches to the music catalog.
func (c *Client) Search(ctx context.Context, query string, limit int, music bool) ([]Entry, error) {
	prefix := fmt.Sprintf("ytsearch%d:", limit)
	if music {
		prefix = fmt.Sprintf("ytmsearch%d:", limit)
	}

	res, err := c.newCommand().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, append(c.commonArgs(true), prefix+query)...)
	if err != nil {
		return nil, classify(res, err)
	}
	return parseEntries(res.Stdout), nil
}

// ExpandPlaylist lists up to limit members of a playlist without resolving
// each one.
func (c *Client) ExpandPlaylist(ctx context.Context, playlistURL string, limit int) ([]Entry, error) {
	res, err := c.newCommand().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(c.commonArgs(true), playlistURL)...)
	if err != nil {
		return nil, classify(res, err)
	}
	entries := parseEntries(res.Stdout)
	if len(entries) == 0 {
		return nil, errors.Wrap(ErrNoOutput, "playlist listing produced no entries")
	}
	return entries, nil
}

func parseEntries(stdout string) []Entry {
	ls := strings.Split(strings.TrimSpace(stdout), "\n")
	entries := make([]Entry, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		entries = append(entries, Entry{URL: ps[0], Title: ps[1], Uploader: ps[2], Duration: d})
	}
	return entries
}

// classify maps yt-dlp failures onto error kinds using its stderr text.
func classify(res *ytdlp.Result, err error) error {
	stderr := ""
	if res != nil {
		stderr = res.Stderr
	}
	msg := strings.ToLower(stderr + " " + err.Error())
	zlog.Debug().Msgf("ytdl: command failed: %v stderr=%s", err, stderr)
	switch {
	case strings.Contains(msg, "private video"), strings.Contains(msg, "drm"),
		strings.Contains(msg, "sign in"), strings.Contains(msg, "in your country"):
		return errors.Wrapf(ErrRestricted, "%v", err)
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "404"),
		strings.Contains(msg, "not found"):
		return errors.Wrapf(ErrNotFound, "%v", err)
	case strings.Contains(msg, "unavailable"):
		return errors.Wrapf(ErrUnavailable, "%v", err)
	default:
		return err
	}
}
