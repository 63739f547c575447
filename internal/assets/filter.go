package assets

import "strings"

type FilterOptions struct {
	Categories []string
	FreeWords  string
}

// Filter keeps stickers in any of the given categories whose name or id
// contains every free word.
func Filter(stickers []Sticker, opt FilterOptions) []Sticker {
	out := []Sticker{}
	for _, s := range stickers {
		if len(opt.Categories) > 0 {
			matched := false
			for _, c := range opt.Categories {
				if strings.EqualFold(s.Category, c) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if opt.FreeWords != "" {
			hay := strings.ToLower(s.Name + " " + s.ID)
			ok := true
			for _, k := range strings.Fields(opt.FreeWords) {
				if !strings.Contains(hay, strings.ToLower(k)) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
