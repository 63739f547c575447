package scene

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/youruser/animelens/internal/geometry"
)

// MaxCaptionRunes bounds the name typed on the name-entry screen.
const MaxCaptionRunes = 30

var upper = cases.Upper(language.Und)

// Caption is the uppercased name printed under the portrait.
type Caption struct {
	text string
}

// NewCaption uppercases s and truncates it to MaxCaptionRunes.
func NewCaption(s string) Caption {
	s = upper.String(s)
	if utf8.RuneCountInString(s) > MaxCaptionRunes {
		s = string([]rune(s)[:MaxCaptionRunes])
	}
	return Caption{text: s}
}

func (c Caption) Text() string { return c.text }

func (c Caption) Len() int { return utf8.RuneCountInString(c.text) }

// Blank reports whether the caption has no visible characters.
func (c Caption) Blank() bool { return strings.TrimSpace(c.text) == "" }

// FontSize is the point size used on the full-resolution poster.
func (c Caption) FontSize() int { return geometry.FontSize(c.Len()) }

// DisplayFontSize is the size shown on the edit-resolution preview.
func (c Caption) DisplayFontSize() int { return geometry.DisplayFontSize(c.Len()) }
