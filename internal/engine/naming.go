// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ncruces/go-strftime"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/streamrec/internal/pipeline"
)

// DefaultOutputTemplate names parts by streamer, start time and title.
const DefaultOutputTemplate = "{streamer}/{streamer}-%Y-%m-%d-%H-%M-%S-{title}"

const maxNameComponent = 200

// Namer renders output paths from a template. Placeholders are {streamer},
// {title}, {platform} and {index}; %-prefixed tokens are strftime directives
// evaluated at segment creation.
type Namer struct {
	Dir      string
	Template string
}

// NameFields are the values substituted into the template.
type NameFields struct {
	Streamer string
	Title    string
	Platform string
}

// PathFunc returns a pipeline path function producing files with ext.
func (n Namer) PathFunc(fields NameFields, ext string) pipeline.PathFunc {
	return func(index int, createdAt time.Time) (string, error) {
		return n.Path(fields, index, createdAt, ext)
	}
}

// Path renders the template for one segment and picks a name not yet in use.
func (n Namer) Path(fields NameFields, index int, createdAt time.Time, ext string) (string, error) {
	tmpl := n.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultOutputTemplate
	}
	r := strings.NewReplacer(
		"{streamer}", escapePercent(SanitizeName(fields.Streamer)),
		"{title}", escapePercent(SanitizeName(fields.Title)),
		"{platform}", escapePercent(SanitizeName(fields.Platform)),
		"{index}", strconv.Itoa(index),
	)
	rendered := strftime.Format(r.Replace(tmpl), createdAt)

	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(rendered), "/") {
		p = strings.TrimSpace(p)
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, truncate(p, maxNameComponent))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: output template %q renders an empty name", ErrInvalidConfig, tmpl)
	}
	base := filepath.Join(append([]string{n.Dir}, parts...)...)
	return unique(base, ext)
}

// unique appends " (n)" until neither the final nor the part file exists.
func unique(base, ext string) (string, error) {
	for i := 0; i < 1000; i++ {
		candidate := base + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			if taken, err = exists(candidate + pipeline.PartSuffix); err != nil {
				return "", err
			}
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s%s", base, ext)
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// SanitizeName normalizes s to NFC and replaces characters that are unsafe in
// file names.
func SanitizeName(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(strings.TrimSpace(b.String()), ".")
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}
