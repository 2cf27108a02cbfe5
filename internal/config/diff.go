// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"maps"
	"reflect"
	"slices"
	"strings"
)

// hotReloadable sections apply without a restart.
var hotReloadable = map[string]struct{}{
	"logLevel":  {},
	"streamers": {},
}

// ChangeSummary describes the difference between two configurations.
type ChangeSummary struct {
	// ChangedFields are the yaml names of changed top-level sections.
	ChangedFields   []string
	RestartRequired bool

	// Added are streamers to enqueue, Removed are streamers to cancel. A
	// streamer whose settings changed appears in both.
	Added   []StreamerConfig
	Removed []StreamerConfig
}

// Empty reports whether nothing changed.
func (s ChangeSummary) Empty() bool { return len(s.ChangedFields) == 0 }

// Diff compares old and next section by section.
func Diff(old, next AppConfig) ChangeSummary {
	var s ChangeSummary
	ov, nv := reflect.ValueOf(old), reflect.ValueOf(next)
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" || name == "" {
			continue
		}
		if reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			continue
		}
		s.ChangedFields = append(s.ChangedFields, name)
		if _, ok := hotReloadable[name]; !ok {
			s.RestartRequired = true
		}
	}
	s.Added, s.Removed = diffStreamers(old.Streamers, next.Streamers)
	return s
}

func diffStreamers(old, next []StreamerConfig) (added, removed []StreamerConfig) {
	before := enabledByURL(old)
	after := enabledByURL(next)
	for _, url := range slices.Sorted(maps.Keys(after)) {
		prev, ok := before[url]
		if !ok || !reflect.DeepEqual(prev, after[url]) {
			added = append(added, after[url])
		}
	}
	for _, url := range slices.Sorted(maps.Keys(before)) {
		cur, ok := after[url]
		if !ok || !reflect.DeepEqual(cur, before[url]) {
			removed = append(removed, before[url])
		}
	}
	return added, removed
}

func enabledByURL(list []StreamerConfig) map[string]StreamerConfig {
	out := make(map[string]StreamerConfig, len(list))
	for _, s := range list {
		if !s.Disabled {
			out[s.URL] = s
		}
	}
	return out
}
