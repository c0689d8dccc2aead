package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  Hero Section  ", want: "Hero Section"},
		{in: "<b>Bold</b> card", want: "Bold card"},
		{in: `<script>alert("x")</script>Pricing`, want: "alert(x)Pricing"},
		{in: `It's "quoted" 1 < 2`, want: "Its quoted 1  2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in), tt.in)
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://cdn.example.com/a.png", want: "https://cdn.example.com/a.png"},
		{in: " https://example.com ", want: "https://example.com"},
		{in: "http://example.com", want: ""},
		{in: "javascript:alert(1)", want: ""},
		{in: "https://", want: ""},
		{in: "not a url", want: ""},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanURL(tt.in), tt.in)
	}
}

func TestCleanTags(t *testing.T) {
	long := strings.Repeat("x", 30)
	got := CleanTags([]string{" Hero ", "hero", "", long, "NAV", "dark"})
	assert.Equal(t, []string{"hero", "nav", "dark"}, got)

	many := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		many = append(many, string(rune('a'+i)))
	}
	assert.Len(t, CleanTags(many), MaxTags)
	assert.Empty(t, CleanTags(nil))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"figma", "webflow", "framer"}, SplitList("figma, webflow", "", " framer ,"))
	assert.Nil(t, SplitList(""))
}
