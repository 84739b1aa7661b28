package render

import (
	"strings"
	"testing"
)

func TestParseVideoURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		wantPlatform string
		wantSrc      string
		wantAspect   string
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=90", "youtube", "youtube-nocookie.com/embed/dQw4w9WgXcQ?playsinline=1&rel=0&start=90", aspectLandscape},
		{"youtube short link", "youtu.be/dQw4w9WgXcQ", "youtube", "youtube-nocookie.com/embed/dQw4w9WgXcQ", aspectLandscape},
		{"youtube shorts", "https://youtube.com/shorts/abc123", "youtube", "embed/abc123", aspectPortrait},
		{"vimeo", "https://vimeo.com/channels/staffpicks/76979871", "vimeo", "player.vimeo.com/video/76979871", aspectLandscape},
		{"vimeo player", "https://player.vimeo.com/video/76979871", "vimeo", "player.vimeo.com/video/76979871", aspectLandscape},
		{"bilibili bv", "https://www.bilibili.com/video/BV1x5411c7mD?p=2", "bilibili", "bvid=BV1x5411c7mD", aspectLandscape},
		{"bilibili av", "https://www.bilibili.com/video/av170001", "bilibili", "aid=170001", aspectLandscape},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			video, ok := ParseVideoURL(tt.raw)
			if !ok {
				t.Fatalf("expected %q to be recognised", tt.raw)
			}
			if video.Platform != tt.wantPlatform {
				t.Fatalf("platform = %q, want %q", video.Platform, tt.wantPlatform)
			}
			if !strings.Contains(video.EmbedURL, tt.wantSrc) {
				t.Fatalf("embed url %q does not contain %q", video.EmbedURL, tt.wantSrc)
			}
			if video.Aspect != tt.wantAspect {
				t.Fatalf("aspect = %q, want %q", video.Aspect, tt.wantAspect)
			}
			if !videoSrcPattern.MatchString(video.EmbedURL) {
				t.Fatalf("embed url %q would be stripped by the sanitizer", video.EmbedURL)
			}
		})
	}
}

func TestParseVideoURLRejectsOtherLinks(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"https://example.com/watch?v=1",
		"ftp://youtube.com/watch?v=abc",
		"https://www.youtube.com/watch",
		"https://vimeo.com/about",
		"https://www.bilibili.com/read/cv123",
		"not a url",
	} {
		if _, ok := ParseVideoURL(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestApplyVideoEmbedsSkipsCode(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"```",
		"https://youtu.be/inside",
		"```",
		"    https://youtu.be/indented",
		"- https://youtu.be/listed",
		"> https://youtu.be/quoted",
		"https://youtu.be/standalone",
	}, "\n")

	out := applyVideoEmbeds(input)
	if strings.Count(out, "<iframe") != 1 {
		t.Fatalf("expected exactly one embed, got: %s", out)
	}
	if !strings.Contains(out, "embed/standalone") {
		t.Fatalf("standalone link was not embedded: %s", out)
	}
}
