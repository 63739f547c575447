package geometry

import "math"

// DisplayScale shrinks caption sizes for the 500px wide edit overlay.
const DisplayScale = 0.659

type fontTier struct {
	maxLen int
	size   int
}

// longer captions get smaller type
var fontTiers = []fontTier{
	{4, 120},
	{6, 100},
	{8, 80},
	{10, 75},
	{14, 55},
	{18, 40},
	{22, 32},
}

const smallestFontSize = 28

// FontSize returns the export caption size in pixels for a caption of
// length runes.
func FontSize(length int) int {
	for _, t := range fontTiers {
		if length <= t.maxLen {
			return t.size
		}
	}
	return smallestFontSize
}

// DisplayFontSize is FontSize scaled for the edit overlay.
func DisplayFontSize(length int) int {
	return int(math.Round(float64(FontSize(length)) * DisplayScale))
}
