package render

import (
	"fmt"
	htmlstd "html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	aspectLandscape = "16:9"
	aspectPortrait  = "9:16"
)

var (
	videoLinePattern = regexp.MustCompile(`^\s*<?((?:https?://)?[^\s]+)>?\s*$`)
	videoSrcPattern  = regexp.MustCompile(
		`^https://(?:www\.youtube-nocookie\.com/embed/|www\.youtube\.com/embed/|player\.vimeo\.com/video/|player\.bilibili\.com/player\.html(?:\?|$))`,
	)
	videoTimePattern = regexp.MustCompile(`(?i)(\d+)(h|m|s)`) // t=1h2m3s
	listIndexPattern = regexp.MustCompile(`^\d+\.\s+`)
)

// Video is a recognised video link and the player URL that embeds it.
type Video struct {
	Platform string
	Source   string
	EmbedURL string
	Aspect   string
}

// ParseVideoURL recognises YouTube, Vimeo and Bilibili links.
func ParseVideoURL(raw string) (Video, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "<")
	trimmed = strings.TrimSuffix(trimmed, ">")
	trimmed = withScheme(trimmed)

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed == nil {
		return Video{}, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Video{}, false
	}
	if parsed.Hostname() == "" {
		return Video{}, false
	}

	for _, parse := range []func(*url.URL, string) (Video, bool){parseYouTube, parseVimeo, parseBilibili} {
		if v, ok := parse(parsed, trimmed); ok {
			return v, true
		}
	}
	return Video{}, false
}

// applyVideoEmbeds replaces lines holding only a video link with a player,
// leaving fenced code, indented code, quotes and lists alone.
func applyVideoEmbeds(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return markdown
	}

	lines := strings.Split(markdown, "\n")
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if marker := fenceMarker(trimmed); marker != "" {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(trimmed, fence):
				fence = ""
			}
			continue
		}
		if fence != "" || isIndentedCode(line) || skipEmbedLine(trimmed) {
			continue
		}

		match := videoLinePattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		video, ok := ParseVideoURL(match[1])
		if !ok {
			continue
		}
		lines[i] = videoHTML(video, "")
	}
	return strings.Join(lines, "\n")
}

func fenceMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	}
	return ""
}

func isIndentedCode(line string) bool {
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}

func skipEmbedLine(line string) bool {
	if line == "" || strings.HasPrefix(line, ">") {
		return true
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
		return true
	}
	return listIndexPattern.MatchString(line)
}

func withScheme(raw string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	for _, prefix := range []string{"youtube.com/", "www.youtube.com/", "youtu.be/", "vimeo.com/", "www.vimeo.com/", "bilibili.com/", "www.bilibili.com/"} {
		if strings.HasPrefix(lower, prefix) {
			return "https://" + raw
		}
	}
	return raw
}

func parseYouTube(u *url.URL, source string) (Video, bool) {
	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == "youtu.be":
		id = firstSegment(strings.TrimPrefix(u.Path, "/"))
	case isHostOrSubdomain(host, "youtube.com"):
		path := strings.Trim(u.Path, "/")
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"):
			id = firstSegment(strings.TrimPrefix(path, "shorts/"))
		case strings.HasPrefix(path, "embed/"):
			id = firstSegment(strings.TrimPrefix(path, "embed/"))
		case strings.HasPrefix(path, "live/"):
			id = firstSegment(strings.TrimPrefix(path, "live/"))
		}
	default:
		return Video{}, false
	}
	if id == "" {
		return Video{}, false
	}

	values := url.Values{}
	values.Set("rel", "0")
	values.Set("playsinline", "1")
	if start := youTubeStart(u.Query()); start > 0 {
		values.Set("start", strconv.Itoa(start))
	}
	aspect := aspectLandscape
	if strings.HasPrefix(strings.Trim(u.Path, "/"), "shorts/") {
		aspect = aspectPortrait
	}
	return Video{
		Platform: "youtube",
		Source:   source,
		EmbedURL: "https://www.youtube-nocookie.com/embed/" + url.PathEscape(id) + "?" + values.Encode(),
		Aspect:   aspect,
	}, true
}

func youTubeStart(query url.Values) int {
	value := query.Get("start")
	if value == "" {
		value = query.Get("t")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds > 0 {
			return seconds
		}
		return 0
	}

	total := 0
	for _, match := range videoTimePattern.FindAllStringSubmatch(value, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(match[2]) {
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total
}

func parseVimeo(u *url.URL, source string) (Video, bool) {
	host := strings.ToLower(u.Hostname())
	if !isHostOrSubdomain(host, "vimeo.com") {
		return Video{}, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if host == "player.vimeo.com" && len(segments) >= 2 && segments[0] == "video" {
		segments = segments[1:]
	}
	id := ""
	for _, segment := range segments {
		if onlyDigits(segment) {
			id = segment
			break
		}
	}
	if id == "" {
		return Video{}, false
	}
	return Video{
		Platform: "vimeo",
		Source:   source,
		EmbedURL: "https://player.vimeo.com/video/" + id + "?dnt=1",
		Aspect:   aspectLandscape,
	}, true
}

func parseBilibili(u *url.URL, source string) (Video, bool) {
	if !isHostOrSubdomain(strings.ToLower(u.Hostname()), "bilibili.com") {
		return Video{}, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] != "video" || segments[1] == "" {
		return Video{}, false
	}

	rawID := segments[1]
	values := url.Values{}
	lower := strings.ToLower(rawID)
	switch {
	case strings.HasPrefix(lower, "bv"):
		values.Set("bvid", rawID)
	case strings.HasPrefix(lower, "av") && onlyDigits(lower[2:]):
		values.Set("aid", lower[2:])
	case onlyDigits(rawID):
		values.Set("aid", rawID)
	default:
		return Video{}, false
	}
	page := 1
	if p, err := strconv.Atoi(u.Query().Get("p")); err == nil && p > 0 {
		page = p
	}
	values.Set("page", strconv.Itoa(page))
	values.Set("high_quality", "1")
	values.Set("danmaku", "0")
	values.Set("autoplay", "0")

	return Video{
		Platform: "bilibili",
		Source:   source,
		EmbedURL: "https://player.bilibili.com/player.html?" + values.Encode(),
		Aspect:   aspectLandscape,
	}, true
}

func videoHTML(v Video, title string) string {
	if title == "" {
		title = videoTitle(v.Platform)
	}
	sandbox := ""
	if v.Platform == "bilibili" {
		sandbox = ` sandbox="allow-scripts allow-same-origin allow-presentation"`
	}
	return fmt.Sprintf(
		`<div class="video-embed" data-video-embed="true" data-video-platform="%s" data-video-aspect="%s" data-video-source="%s">`+
			`<iframe src="%s" title="%s" loading="lazy" allow="accelerometer; clipboard-write; encrypted-media; gyroscope; picture-in-picture; web-share" allowfullscreen frameborder="0" referrerpolicy="strict-origin-when-cross-origin"%s></iframe>`+
			`</div>`,
		htmlstd.EscapeString(v.Platform),
		htmlstd.EscapeString(v.Aspect),
		htmlstd.EscapeString(v.Source),
		htmlstd.EscapeString(v.EmbedURL),
		htmlstd.EscapeString(title),
		sandbox,
	)
}

func videoTitle(platform string) string {
	switch platform {
	case "youtube":
		return "YouTube video player"
	case "vimeo":
		return "Vimeo video player"
	case "bilibili":
		return "Bilibili video player"
	default:
		return "Video player"
	}
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	if idx := strings.Index(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return path
}

func onlyDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHostOrSubdomain(host, domain string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
