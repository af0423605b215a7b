// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"strings"

	"github.com/moistari/rls"

	"github.com/autobrr/fetcharr/internal/domain"
)

// ParseTitle extracts quality, languages, group and episode numbering from
// a release name. Unrecognized resolution/source combinations land on
// QualityUnknown and get filtered by every profile.
func ParseTitle(title string) *domain.Candidate {
	r := rls.ParseString(title)

	c := &domain.Candidate{
		Title:        title,
		QualityID:    qualityFor(r.Resolution, r.Source),
		ReleaseGroup: r.Group,
		Season:       r.Series,
		Episode:      r.Episode,
	}
	for _, lang := range r.Language {
		c.Languages = append(c.Languages, strings.ToLower(lang))
	}
	return c
}

// qualityFor maps rls parse output onto the quality ladder. Source names
// follow rls conventions ("WEB-DL", "BluRay", "HDTV", "DVD").
func qualityFor(resolution, source string) int {
	src := strings.ToLower(source)
	web := strings.HasPrefix(src, "web")
	bluray := strings.Contains(src, "blu")

	switch strings.ToLower(resolution) {
	case "2160p":
		switch {
		case bluray:
			return domain.QualityBluray2160p
		case web:
			return domain.QualityWEBDL2160p
		default:
			return domain.QualityHDTV2160p
		}
	case "1080p":
		switch {
		case bluray:
			return domain.QualityBluray1080p
		case web:
			return domain.QualityWEBDL1080p
		default:
			return domain.QualityHDTV1080p
		}
	case "720p":
		switch {
		case bluray:
			return domain.QualityBluray720p
		case web:
			return domain.QualityWEBDL720p
		default:
			return domain.QualityHDTV720p
		}
	case "480p", "576p":
		if web {
			return domain.QualityWEBDL480p
		}
		return domain.QualitySDTV
	default:
		switch {
		case strings.Contains(src, "dvd"):
			return domain.QualityDVD
		case src == "sdtv" || src == "tv":
			return domain.QualitySDTV
		default:
			return domain.QualityUnknown
		}
	}
}
