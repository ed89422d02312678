package models

import (
	"fmt"
	"math"
	"time"
)

// CandidateKey renders the (iteration, candidateId) pair as "i{iter}c{id}".
// The key is unique within a job and doubles as the image base name.
func CandidateKey(iteration, candidateID int) string {
	return fmt.Sprintf("i%dc%d", iteration, candidateID)
}

// ComputeTotalScore combines an alignment score (0..100) and an aesthetic
// score (0..10) into a single 0..100 score weighted by alpha:
//
//	round(alpha·alignment + (1-alpha)·aesthetic·10)
func ComputeTotalScore(alpha, alignment, aesthetic float64) float64 {
	return math.Round(alpha*alignment + (1-alpha)*aesthetic*10)
}

// CandidateImage holds the two ways a rendered image can be referenced:
// the URL served by the HTTP boundary and the path on local disk.
type CandidateImage struct {
	URL       string `json:"url"`
	LocalPath string `json:"localPath,omitempty"`
}

// Ranking is the ranker's verdict for one candidate within an iteration.
type Ranking struct {
	Rank       int      `json:"rank"`
	Reason     string   `json:"reason"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// RankEntry is one row of the ranker's ordered output.
type RankEntry struct {
	CandidateID int      `json:"candidateId"`
	Rank        int      `json:"rank"`
	Reason      string   `json:"reason"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

// Candidate is one (prompt, image, scores) tuple produced within an
// iteration. ParentID is the key of the surviving candidate this one was
// derived from; nil at iteration 0.
type Candidate struct {
	Iteration      int             `json:"iteration"`
	CandidateID    int             `json:"candidateId"`
	ParentID       *string         `json:"parentId"`
	WhatPrompt     string          `json:"whatPrompt"`
	HowPrompt      string          `json:"howPrompt"`
	Combined       string          `json:"combined"`
	Image          *CandidateImage `json:"image,omitempty"`
	AlignmentScore float64         `json:"alignmentScore"`
	AestheticScore float64         `json:"aestheticScore"`
	TotalScore     float64         `json:"totalScore"`
	Ranking        *Ranking        `json:"ranking,omitempty"`
	Survived       bool            `json:"survived"`
	FailureReason  string          `json:"failureReason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Key returns the candidate's "i{iter}c{id}" identifier.
func (c *Candidate) Key() string {
	return CandidateKey(c.Iteration, c.CandidateID)
}

// ImageFilename returns the per-session image file name, e.g. "i0c1.png".
func (c *Candidate) ImageFilename() string {
	return c.Key() + ".png"
}

// Failed reports whether the candidate was abandoned after its retry budget.
func (c *Candidate) Failed() bool {
	return c.FailureReason != ""
}

// IterationFrame is one completed round of expand, render, score, prune.
// TopCandidates holds the keys of the min(m, scored) survivors, highest
// TotalScore first, ties broken by lower CandidateID.
type IterationFrame struct {
	Iteration     int          `json:"iteration"`
	Candidates    []*Candidate `json:"candidates"`
	TopCandidates []string     `json:"topCandidates"`
}

// LineageEntry is one hop in the parent chain from the iteration-0 ancestor
// down to the winner.
type LineageEntry struct {
	Iteration   int `json:"iteration"`
	CandidateID int `json:"candidateId"`
}
