package service

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*]\((<[^>]+>|[^)\s]+)([^)]*)\)`)
	// :name 前面不能是单词字符、冒号或斜杠，以免误伤 URL 与时间。
	namedPlaceholderPattern = regexp.MustCompile(`(?:^|[^\w:/]):[A-Za-z_]\w*|\{[A-Za-z_]\w*\}`)
)

type protectedToken struct {
	mask     string
	original string
}

// protectedText 记录送去翻译前被遮盖的片段：Markdown 图片地址以及 :name、{name} 形式的变量。
type protectedText struct {
	tokens []protectedToken
}

// protectTranslatable 把图片地址换成 image://asset-N，把变量换成 [[N]]，
// 既节省 Token，也避免模型改写它们。
func protectTranslatable(input string) (string, *protectedText) {
	guard := &protectedText{}

	masked := markdownImagePattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := markdownImagePattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		original := groups[1]
		mask := fmt.Sprintf("image://asset-%d", len(guard.tokens)+1)
		if strings.HasPrefix(original, "<") && strings.HasSuffix(original, ">") {
			mask = "<" + mask + ">"
		}
		guard.tokens = append(guard.tokens, protectedToken{mask: mask, original: original})
		return strings.Replace(match, original, mask, 1)
	})

	masked = namedPlaceholderPattern.ReplaceAllStringFunc(masked, func(match string) string {
		prefix, name := "", match
		if !strings.HasPrefix(match, "{") {
			idx := strings.Index(match, ":")
			prefix, name = match[:idx], match[idx:]
		}
		mask := fmt.Sprintf("[[%d]]", len(guard.tokens)+1)
		guard.tokens = append(guard.tokens, protectedToken{mask: mask, original: name})
		return prefix + mask
	})

	return masked, guard
}

// Len 返回被遮盖的片段数量。
func (p *protectedText) Len() int {
	if p == nil {
		return 0
	}
	return len(p.tokens)
}

// Restore 还原译文中的遮盖片段。任一片段在译文中丢失时 complete 为 false。
func (p *protectedText) Restore(translated string) (string, bool) {
	if p.Len() == 0 {
		return translated, true
	}
	complete := true
	// 倒序替换，image://asset-1 不会吃掉 image://asset-10 的前缀
	for i := len(p.tokens) - 1; i >= 0; i-- {
		token := p.tokens[i]
		if !strings.Contains(translated, token.mask) {
			complete = false
			continue
		}
		translated = strings.ReplaceAll(translated, token.mask, token.original)
	}
	return translated, complete
}
