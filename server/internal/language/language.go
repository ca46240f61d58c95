// Package language 把语言选择器解析为支持的演出语言，并提供各语言的模板文案。
package language

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Code 支持的演出语言。
type Code string

const (
	Chinese  Code = "zh"
	English  Code = "en"
	Japanese Code = "ja"
)

var (
	supported = []language.Tag{language.Chinese, language.English, language.Japanese}
	codes     = []Code{Chinese, English, Japanese}
	matcher   = language.NewMatcher(supported)
)

// Resolve 解析语言选择器（BCP 47，如 "zh-CN"、"en-US"、"ja"）。
// 选择器为空、为 "auto" 或无法匹配时，从 sample 文本推断；sample 也无法判断时返回 fallback。
func Resolve(selector, sample string, fallback Code) Code {
	selector = strings.TrimSpace(selector)
	if selector != "" && !strings.EqualFold(selector, "auto") {
		if tag, err := language.Parse(selector); err == nil {
			if _, idx, conf := matcher.Match(tag); conf != language.No {
				return codes[idx]
			}
		}
	}
	if code, ok := Detect(sample); ok {
		return code
	}
	if fallback == "" {
		return Chinese
	}
	return fallback
}

// Detect 按字符分布粗略判断文本语言：出现足够多的假名即日语，汉字多于拉丁字母为中文，否则英文。
func Detect(text string) (Code, bool) {
	var han, kana, latin int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Han, r):
			han++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	total := han + kana + latin
	if total == 0 {
		return "", false
	}
	switch {
	case float64(kana)/float64(total) > 0.1:
		return Japanese, true
	case han >= latin:
		return Chinese, true
	default:
		return English, true
	}
}

// Tag 返回对应的 BCP 47 标签。
func (c Code) Tag() language.Tag {
	for i, code := range codes {
		if code == c {
			return supported[i]
		}
	}
	return language.Chinese
}
