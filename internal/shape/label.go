package shape

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// fallbackPinyin covers common label characters when the dictionary lookup
// yields nothing for a rune.
var fallbackPinyin = map[rune]string{
	'人': "ren", '车': "che", '狗': "gou", '猫': "mao", '鸟': "niao",
	'树': "shu", '花': "hua", '门': "men", '窗': "chuang", '桌': "zhuo",
	'椅': "yi", '灯': "deng", '牌': "pai", '号': "hao", '称': "cheng",
	'标': "biao", '签': "qian", '字': "zi", '头': "tou", '手': "shou",
	'脸': "lian", '包': "bao", '瓶': "ping", '杯': "bei", '书': "shu",
	'红': "hong", '绿': "lv", '蓝': "lan", '黄': "huang", '黑': "hei",
	'白': "bai", '大': "da", '小': "xiao", '左': "zuo", '右': "you",
}

var pinyinArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Style = pinyin.Normal
	a.Fallback = func(rune, pinyin.Args) []string { return nil }
	return a
}()

// ContainsCJK reports whether s holds any Han, kana or Hangul codepoint.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if isCJK(r) {
			return true
		}
	}
	return false
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// NormalizeLabel trims the label and, when it contains CJK text, converts it
// to a lowercase-initial camel-case pinyin identifier: 称号 becomes chengHao.
// Latin words inside a mixed label are kept as their own segments and any
// other character acts as a separator. Labels without CJK text are only
// trimmed.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if !ContainsCJK(label) {
		return label
	}

	var segments []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			segments = append(segments, word.String())
			word.Reset()
		}
	}

	for _, r := range label {
		switch {
		case isCJK(r):
			flush()
			segments = append(segments, syllable(r))
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	var b strings.Builder
	for i, seg := range segments {
		if i == 0 {
			b.WriteString(lowerFirst(seg))
			continue
		}
		b.WriteString(upperFirst(seg))
	}
	return b.String()
}

// syllable transliterates one CJK rune.
func syllable(r rune) string {
	if unicode.Is(unicode.Han, r) {
		if py := pinyin.LazyPinyin(string(r), pinyinArgs); len(py) > 0 && py[0] != "" {
			return py[0]
		}
	}
	if s, ok := fallbackPinyin[r]; ok {
		return s
	}
	return fmt.Sprintf("char%d", r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
