// Package match scores imported document lines against a project's cost-plan
// lines. It combines token overlap with string similarity and an optional
// section hint, and tiers the result into auto-link, review and no-match
// confidence bands. An optional Resolver can break ties between shortlisted
// candidates.
package match

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

// Confidence tells the import pipeline what to do with a match.
type Confidence string

const (
	// ConfidenceAuto links without human review.
	ConfidenceAuto Confidence = "auto"
	// ConfidenceReview queues the match for confirmation.
	ConfidenceReview Confidence = "review"
	// ConfidenceNone leaves the document line unlinked.
	ConfidenceNone Confidence = "none"
)

const (
	// AutoThreshold is the minimum score for an automatic link.
	AutoThreshold = 0.80
	// ReviewThreshold is the minimum score worth a human look.
	ReviewThreshold = 0.50

	weightTokens  = 0.55
	weightString  = 0.30
	weightSection = 0.15

	// ambiguityMargin demotes an auto match whose runner-up is this close.
	// Two near-equal candidates must never auto-link.
	ambiguityMargin = 0.08

	jaroBoostThreshold = 0.7
	jaroPrefixSize     = 4
)

// Candidate is a cost-plan line offered to the matcher.
type Candidate struct {
	Key     string
	Label   string
	Section string
}

// Query is one document line looking for its cost-plan line.
type Query struct {
	Text    string
	Section string
}

// Match is a scored candidate.
type Match struct {
	Candidate
	Score      float64
	Confidence Confidence
}

// Score rates how well a candidate fits the query, in [0,1]. Token overlap
// dominates, string similarity catches misspellings and word-order changes,
// and a section hint nudges same-section candidates ahead. When either side
// lacks a section the text components are rescaled to full weight, so
// queries without a hint can still reach an automatic link.
func Score(q Query, c Candidate) float64 {
	qNorm := Normalize(q.Text)
	cNorm := Normalize(c.Label)
	if qNorm == "" || cNorm == "" {
		return 0
	}

	dice := diceCoefficient(TokensOf(q.Text), TokensOf(c.Label))
	jaro := smetrics.JaroWinkler(qNorm, cNorm, jaroBoostThreshold, jaroPrefixSize)

	if q.Section == "" || c.Section == "" {
		return (weightTokens*dice + weightString*jaro) / (weightTokens + weightString)
	}
	bonus := 0.0
	if strings.EqualFold(strings.TrimSpace(q.Section), strings.TrimSpace(c.Section)) {
		bonus = 1.0
	}
	return weightTokens*dice + weightString*jaro + weightSection*bonus
}

// Rank scores every candidate and returns them ordered best first, ties kept
// in candidate order. Each match carries its confidence tier; the top match
// is demoted from auto to review when the runner-up is within the ambiguity
// margin.
func Rank(q Query, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{Candidate: c, Score: Score(q, c)})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	for i := range matches {
		matches[i].Confidence = tier(matches[i].Score)
	}
	if len(matches) >= 2 &&
		matches[0].Confidence == ConfidenceAuto &&
		matches[0].Score-matches[1].Score < ambiguityMargin {
		matches[0].Confidence = ConfidenceReview
	}
	return matches
}

// Best returns the top-ranked match, or false when there are no candidates.
func Best(q Query, candidates []Candidate) (Match, bool) {
	ranked := Rank(q, candidates)
	if len(ranked) == 0 {
		return Match{}, false
	}
	return ranked[0], true
}

// Shortlist returns the leading matches still worth considering: everything
// at or above the review threshold, capped at limit.
func Shortlist(ranked []Match, limit int) []Match {
	var out []Match
	for _, m := range ranked {
		if m.Score < ReviewThreshold || len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out
}

func tier(score float64) Confidence {
	switch {
	case score >= AutoThreshold:
		return ConfidenceAuto
	case score >= ReviewThreshold:
		return ConfidenceReview
	default:
		return ConfidenceNone
	}
}

// diceCoefficient is the Sørensen–Dice coefficient over token sets.
func diceCoefficient(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(setA)+len(setB))
}
