package assets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// ManifestName is the optional sticker list inside the sticker directory.
const ManifestName = "stickers.csv"

var stickerExts = map[string]bool{".png": true, ".webp": true, ".gif": true, ".jpg": true, ".jpeg": true}

// Catalog is the set of stickers offered in the editor.
type Catalog struct {
	Stickers []Sticker
	byID     map[string]Sticker
}

func NewCatalog(stickers []Sticker) *Catalog {
	c := &Catalog{Stickers: stickers, byID: make(map[string]Sticker, len(stickers))}
	for _, s := range stickers {
		c.byID[s.ID] = s
	}
	return c
}

func (c *Catalog) Lookup(id string) (Sticker, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// LoadStickersFromDir builds the catalog from stickers.csv when present,
// otherwise from every image file in dir sorted by name.
func LoadStickersFromDir(dir string) (*Catalog, error) {
	manifest := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(manifest); err == nil {
		stickers, err := loadManifest(manifest, dir)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", manifest, err)
		}
		return NewCatalog(stickers), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sticker dir: %w", err)
	}
	var stickers []Sticker
	for _, e := range entries {
		if e.IsDir() || !stickerExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		stickers = append(stickers, Sticker{
			ID:   Slug(name),
			Name: name,
			URI:  filepath.Join(dir, e.Name()),
		})
	}
	if len(stickers) == 0 {
		return nil, fmt.Errorf("no sticker images found in %s", dir)
	}
	sort.Slice(stickers, func(i, j int) bool { return stickers[i].Name < stickers[j].Name })
	return NewCatalog(stickers), nil
}

// loadManifest reads id,name,file,category rows. Relative files resolve
// against dir; URLs and s3:// objects are used as is.
func loadManifest(path, dir string) ([]Sticker, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return parseManifest(fp, dir)
}

func parseManifest(r io.Reader, dir string) ([]Sticker, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("manifest has no header")
	}
	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["file"]; !ok {
		return nil, fmt.Errorf("manifest has no file column")
	}
	get := func(row []string, name string) string {
		if idx, ok := cols[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	out := []Sticker{}
	seen := map[string]bool{}
	for n, row := range rows[1:] {
		file := get(row, "file")
		if file == "" {
			continue
		}
		s := Sticker{
			ID:       get(row, "id"),
			Name:     get(row, "name"),
			Category: get(row, "category"),
			URI:      resolve(dir, file),
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}
		if s.ID == "" {
			s.ID = Slug(s.Name)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("row %d: duplicate sticker id %q", n+2, s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func resolve(dir, file string) string {
	if strings.Contains(file, "://") || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// Slug turns "Frame 25" into "frame-25".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
