// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package decision

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

// Specification implementations.
const (
	SpecReleaseTitle = "release_title"
	SpecReleaseGroup = "release_group"
	SpecLanguage     = "language"
	SpecSize         = "size"
	SpecQuality      = "quality"
	SpecProtocol     = "protocol"
	SpecIndexer      = "indexer"
	SpecExpression   = "expression"
)

// compiledSpec is a format specification with its pattern or program
// compiled once at load time.
type compiledSpec struct {
	impl     string
	negate   bool
	required bool

	pattern   *regexp.Regexp // release_title, release_group
	language  string
	minBytes  int64
	maxBytes  int64
	qualityID int
	protocol  domain.Protocol
	indexerID int
	program   *vm.Program
}

type compiledFormat struct {
	id    int
	name  string
	specs []compiledSpec
}

// Matcher evaluates custom formats against candidates. Formats are
// compiled up front so a bad regex or expression fails at construction,
// not mid-scan.
type Matcher struct {
	formats []compiledFormat
}

// NewMatcher compiles the given formats. A format that fails to compile
// aborts construction; ValidateFormat runs the same compilation at save
// time so this only trips on rows written before validation existed.
func NewMatcher(formats []*models.CustomFormat) (*Matcher, error) {
	m := &Matcher{formats: make([]compiledFormat, 0, len(formats))}
	for _, cf := range formats {
		compiled, err := compileFormat(cf)
		if err != nil {
			return nil, err
		}
		m.formats = append(m.formats, compiled)
	}
	return m, nil
}

// ValidateFormat compiles every specification of the format and returns a
// ValidationError naming the offending part. Wired into the custom format
// store so malformed patterns are rejected before they are persisted.
func ValidateFormat(cf *models.CustomFormat) error {
	_, err := compileFormat(cf)
	return err
}

func compileFormat(cf *models.CustomFormat) (compiledFormat, error) {
	out := compiledFormat{id: cf.ID, name: cf.Name}
	if strings.TrimSpace(cf.Name) == "" {
		return out, &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(cf.Specifications) == 0 {
		return out, &models.ValidationError{Field: "specifications", Reason: "must contain at least one specification"}
	}
	for i, spec := range cf.Specifications {
		cs, err := compileSpec(spec)
		if err != nil {
			return out, &models.ValidationError{
				Field:  fmt.Sprintf("specifications[%d]", i),
				Reason: err.Error(),
			}
		}
		out.specs = append(out.specs, cs)
	}
	// Required specifications are cheap gates; test them first so a
	// failing required spec short-circuits the rest.
	sort.SliceStable(out.specs, func(i, j int) bool {
		return out.specs[i].required && !out.specs[j].required
	})
	return out, nil
}

func compileSpec(spec models.FormatSpecification) (compiledSpec, error) {
	cs := compiledSpec{impl: spec.Implementation, negate: spec.Negate, required: spec.Required}

	switch spec.Implementation {
	case SpecReleaseTitle, SpecReleaseGroup:
		value, err := fieldString(spec.Fields, "value")
		if err != nil {
			return cs, err
		}
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			return cs, fmt.Errorf("invalid pattern %q: %w", value, err)
		}
		cs.pattern = re

	case SpecLanguage:
		value, err := fieldString(spec.Fields, "value")
		if err != nil {
			return cs, err
		}
		cs.language = strings.ToLower(value)

	case SpecSize:
		minGB, _ := fieldFloat(spec.Fields, "min")
		maxGB, err := fieldFloat(spec.Fields, "max")
		if err != nil {
			return cs, err
		}
		if maxGB <= minGB {
			return cs, fmt.Errorf("size max %.1f must exceed min %.1f", maxGB, minGB)
		}
		cs.minBytes = int64(minGB * 1024 * 1024 * 1024)
		cs.maxBytes = int64(maxGB * 1024 * 1024 * 1024)

	case SpecQuality:
		id, err := fieldFloat(spec.Fields, "qualityId")
		if err != nil {
			return cs, err
		}
		if _, ok := domain.QualityByID(int(id)); !ok {
			return cs, fmt.Errorf("unknown quality id %d", int(id))
		}
		cs.qualityID = int(id)

	case SpecProtocol:
		value, err := fieldString(spec.Fields, "value")
		if err != nil {
			return cs, err
		}
		cs.protocol = domain.ParseProtocol(value)

	case SpecIndexer:
		id, err := fieldFloat(spec.Fields, "indexerId")
		if err != nil {
			return cs, err
		}
		cs.indexerID = int(id)

	case SpecExpression:
		src, err := fieldString(spec.Fields, "expression")
		if err != nil {
			return cs, err
		}
		program, err := expr.Compile(src, expr.Env(exprEnv(&domain.Candidate{})), expr.AsBool())
		if err != nil {
			return cs, fmt.Errorf("invalid expression: %w", err)
		}
		cs.program = program

	default:
		return cs, fmt.Errorf("unknown implementation %q", spec.Implementation)
	}
	return cs, nil
}

func fieldString(fields map[string]any, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}
	return s, nil
}

func fieldFloat(fields map[string]any, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %q must be a number", key)
	}
}

func exprEnv(c *domain.Candidate) map[string]any {
	quality := ""
	if q, ok := domain.QualityByID(c.QualityID); ok {
		quality = q.Name
	}
	return map[string]any{
		"Title":        c.Title,
		"Size":         c.Size,
		"Protocol":     string(c.Protocol),
		"Quality":      quality,
		"Languages":    c.Languages,
		"ReleaseGroup": c.ReleaseGroup,
		"IndexerID":    c.IndexerID,
	}
}

func (cs *compiledSpec) test(c *domain.Candidate) bool {
	var hit bool
	switch cs.impl {
	case SpecReleaseTitle:
		hit = cs.pattern.MatchString(c.Title)
	case SpecReleaseGroup:
		hit = c.ReleaseGroup != "" && cs.pattern.MatchString(c.ReleaseGroup)
	case SpecLanguage:
		for _, lang := range c.Languages {
			if strings.ToLower(lang) == cs.language {
				hit = true
				break
			}
		}
	case SpecSize:
		hit = c.Size >= cs.minBytes && c.Size <= cs.maxBytes
	case SpecQuality:
		hit = c.QualityID == cs.qualityID
	case SpecProtocol:
		hit = c.Protocol == cs.protocol
	case SpecIndexer:
		hit = c.IndexerID == cs.indexerID
	case SpecExpression:
		out, err := expr.Run(cs.program, exprEnv(c))
		if err != nil {
			return false
		}
		hit, _ = out.(bool)
	}
	// Negate flips the individual specification result before the
	// all-must-match combination.
	return hit != cs.negate
}

// matches reports whether every specification of the format passes for
// the candidate.
func (f *compiledFormat) matches(c *domain.Candidate) bool {
	for i := range f.specs {
		if !f.specs[i].test(c) {
			return false
		}
	}
	return true
}

// Score runs every format against the candidate and sums the profile's
// score for each match. Formats the profile assigns no score to still
// match, contributing zero; they are reported so the caller can record
// which formats applied.
func (m *Matcher) Score(c *domain.Candidate, profile *models.QualityProfile) (matched []int, total int) {
	for i := range m.formats {
		f := &m.formats[i]
		if !f.matches(c) {
			continue
		}
		matched = append(matched, f.id)
		total += profile.FormatScores[f.id]
	}
	return matched, total
}
