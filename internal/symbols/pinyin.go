package symbols

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// 全角标点到符号表标点的映射。
var fullwidthPunct = map[rune]rune{
	'，': ',', '。': '.', '！': '!', '？': '?', '；': ';', '：': ':',
	'、': ',', '（': '(', '）': ')', '“': '\'', '”': '\'', '‘': '\'', '’': '\'',
	'—': '-', '…': '.',
}

var pinyinArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Style = pinyin.Tone3 // 声调数字放在音节末尾，如 zhong1
	a.Fallback = func(r rune, a pinyin.Args) []string { return nil }
	return a
}()

// pinyinCleaners 把汉字转为带声调数字的拼音，音节之间用空格分隔；
// 轻声补 5，ASCII 字母转小写，全角标点转半角。
func pinyinCleaners(text string) string {
	var b strings.Builder
	var han []rune

	flush := func() {
		if len(han) == 0 {
			return
		}
		for _, syl := range pinyin.LazyPinyin(string(han), pinyinArgs) {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString(syl)
			if last := syl[len(syl)-1]; last < '1' || last > '4' {
				b.WriteByte('5')
			}
		}
		han = han[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han = append(han, r)
			continue
		case isASCIILetter(r):
			flush()
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			flush()
			b.WriteByte(' ')
		default:
			flush()
			if p, ok := fullwidthPunct[r]; ok {
				r = p
			}
			if strings.ContainsRune(punctuation+special, r) {
				b.WriteRune(r)
			}
		}
	}
	flush()

	return strings.TrimSpace(whitespace.ReplaceAllString(b.String(), " "))
}
