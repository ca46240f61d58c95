package director

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxKeywords = 5

var stopwords = map[string]struct{}{
	"的": {}, "了": {}, "在": {}, "是": {}, "我": {}, "你": {}, "他": {}, "她": {}, "它": {},
	"们": {}, "这": {}, "那": {}, "有": {}, "和": {}, "就": {}, "不": {}, "也": {}, "都": {},
	"说": {}, "很": {}, "吗": {}, "吧": {}, "呢": {}, "啊": {}, "哦": {}, "嗯": {}, "哈": {}, "呀": {},
	"the": {}, "is": {}, "are": {}, "was": {}, "and": {}, "or": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "it": {}, "you": {}, "me": {}, "my": {}, "we": {}, "he": {}, "she": {}, "that": {},
	"this": {}, "what": {}, "so": {}, "do": {}, "did": {}, "an": {}, "be": {}, "at": {},
}

// ExtractKeywords 提取简单关键词：去标点、按空白切分、丢掉过短词和停用词，最多保留 5 个。
func ExtractKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || r == '~' || r == '～' {
			return ' '
		}
		return unicode.ToLower(r)
	}, text)

	keywords := make([]string, 0, maxKeywords)
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func keywordSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range texts {
		for _, kw := range ExtractKeywords(t) {
			set[kw] = struct{}{}
		}
	}
	return set
}
