package resolver

import "regexp"

// URL shapes accepted as direct video references. Anything else is treated
// as free text.
var (
	watchURLRe = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?youtube\.com/watch\?(?:.*&)?v=([A-Za-z0-9_-]{11})`)
	shortURLRe = regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([A-Za-z0-9_-]{11})`)
	embedURLRe = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/embed/([A-Za-z0-9_-]{11})`)

	playlistParamRe = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
	youtubeHostRe   = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?(?:youtube\.com|youtu\.be)/`)
)

// IsVideoURL reports whether the query is a direct video URL.
func IsVideoURL(query string) bool {
	_, ok := ExtractVideoID(query)
	return ok
}

// ExtractVideoID pulls the 11-character video ID out of a video URL.
func ExtractVideoID(query string) (string, bool) {
	for _, re := range []*regexp.Regexp{watchURLRe, shortURLRe, embedURLRe} {
		if m := re.FindStringSubmatch(query); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// IsPlaylistURL reports whether the query is a playlist URL. A watch URL
// carrying a list parameter counts as a playlist.
func IsPlaylistURL(query string) bool {
	return youtubeHostRe.MatchString(query) && playlistParamRe.MatchString(query)
}

// WatchURL builds the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
