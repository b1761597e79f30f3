// Package identity guesses the Telegram handle a donor meant when writing a
// free-text donation message.
package identity

import (
	"regexp"
	"strings"
)

var (
	mentionRe = regexp.MustCompile(`@(\w+)`)

	labeledRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:username|user|ник|имя пользователя)[\s:=]+(@?\w+)`),
		regexp.MustCompile(`(?i)(?:telegram|tg)[\s:=]+(@?\w+)`),
	}

	handleRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

const (
	minHandleLen = 5
	maxHandleLen = 32

	tokenTrim = ".,!?;:()[]{}\"' "
)

// Extract returns the most likely handle in text, without the leading "@".
// Rules are tried in order and the first hit wins:
//  1. the first @mention;
//  2. a labeled field such as "username: x" or "tg=x";
//  3. the first bare token that looks like a handle.
func Extract(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	if m := mentionRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	for _, re := range labeledRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		h := strings.TrimPrefix(m[1], "@")
		if len(h) >= minHandleLen && handleRe.MatchString(h) {
			return h, true
		}
	}

	for _, word := range strings.Fields(text) {
		w := strings.TrimLeft(strings.Trim(word, tokenTrim), "@")
		if looksLikeHandle(w) {
			return w, true
		}
	}
	return "", false
}

func looksLikeHandle(w string) bool {
	if len(w) < minHandleLen || len(w) > maxHandleLen {
		return false
	}
	if !handleRe.MatchString(w) {
		return false
	}
	return strings.Trim(w, "0123456789") != ""
}
