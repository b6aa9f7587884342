// Package symbols 把文本转换为声学模型的符号 ID 序列。
//
// 字符集由超参数中的 charset 决定（旧配置中叫 language）。
package symbols

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	pad         = '_'
	special     = "-"
	punctuation = "!'(),.:;? "
)

// Charset 是一个字符集：符号表加上文本清洗规则。
type Charset struct {
	name    string
	symbols []rune
	index   map[rune]int64
	clean   func(string) string
}

func newCharset(name string, letters string, clean func(string) string) *Charset {
	syms := []rune{pad}
	syms = append(syms, []rune(special)...)
	syms = append(syms, []rune(punctuation)...)
	syms = append(syms, []rune(letters)...)

	idx := make(map[rune]int64, len(syms))
	for i, r := range syms {
		idx[r] = int64(i)
	}
	return &Charset{name: name, symbols: syms, index: idx, clean: clean}
}

var charsets = map[string]*Charset{
	"en": newCharset("en",
		"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz",
		englishCleaners),
	"zh_pinyin": newCharset("zh_pinyin",
		"abcdefghijklmnopqrstuvwxyz12345",
		pinyinCleaners),
}

// Lookup 按名称查找字符集。
func Lookup(name string) (*Charset, error) {
	cs, ok := charsets[name]
	if !ok {
		return nil, fmt.Errorf("symbols: 未知字符集 %q（支持: %s）", name, strings.Join(Names(), ", "))
	}
	return cs, nil
}

// Names 返回支持的字符集名称。
func Names() []string {
	names := make([]string, 0, len(charsets))
	for n := range charsets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Name 返回字符集名称。
func (c *Charset) Name() string { return c.name }

// Size 返回符号表大小。
func (c *Charset) Size() int { return len(c.symbols) }

// Encode 清洗文本并转换为符号 ID，不在符号表中的字符被丢弃。
func (c *Charset) Encode(text string) []int64 {
	cleaned := c.clean(text)
	ids := make([]int64, 0, len(cleaned))
	for _, r := range cleaned {
		if id, ok := c.index[r]; ok && r != pad {
			ids = append(ids, id)
		}
	}
	return ids
}

// Decode 把符号 ID 还原为字符串，越界 ID 被忽略。
func (c *Charset) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && int(id) < len(c.symbols) {
			b.WriteRune(c.symbols[id])
		}
	}
	return b.String()
}

var whitespace = regexp.MustCompile(`\s+`)

var abbreviations = []struct {
	re   *regexp.Regexp
	full string
}{
	{regexp.MustCompile(`\bmrs\.`), "misess"},
	{regexp.MustCompile(`\bmr\.`), "mister"},
	{regexp.MustCompile(`\bdr\.`), "doctor"},
	{regexp.MustCompile(`\bst\.`), "saint"},
	{regexp.MustCompile(`\bco\.`), "company"},
	{regexp.MustCompile(`\bjr\.`), "junior"},
	{regexp.MustCompile(`\bmaj\.`), "major"},
	{regexp.MustCompile(`\bgen\.`), "general"},
	{regexp.MustCompile(`\bdrs\.`), "doctors"},
	{regexp.MustCompile(`\brev\.`), "reverend"},
	{regexp.MustCompile(`\blt\.`), "lieutenant"},
	{regexp.MustCompile(`\bsgt\.`), "sergeant"},
	{regexp.MustCompile(`\bcapt\.`), "captain"},
	{regexp.MustCompile(`\besq\.`), "esquire"},
	{regexp.MustCompile(`\bltd\.`), "limited"},
	{regexp.MustCompile(`\bft\.`), "fort"},
}

// englishCleaners：转小写、展开常见缩写、合并空白。
func englishCleaners(text string) string {
	text = strings.ToLower(text)
	for _, a := range abbreviations {
		text = a.re.ReplaceAllString(text, a.full)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func isASCIILetter(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}
