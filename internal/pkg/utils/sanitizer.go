package utils

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	MaxTags      = 10
	MaxTagLength = 29
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	unsafeChars    = strings.NewReplacer("<", "", ">", "", "'", "", `"`, "")
)

// CleanText strips HTML tags and quote/angle characters from user text.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(unsafeChars.Replace(text))
}

// CleanURL returns raw when it is an absolute https URL, otherwise "".
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return raw
}

// CleanTags lowercases and trims tags, drops empty or overlong ones and
// duplicates, and keeps at most MaxTags.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || len(tag) > MaxTagLength {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// SplitList splits a comma separated query value, dropping blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
