// Package selector slices the content repository into bounded question sets.
package selector

import (
	"github.com/pavelanni/examprep/internal/model"
)

// ChapterSource is the part of the catalog the selector reads.
type ChapterSource interface {
	Chapters() []model.Chapter
}

// SelectChapters returns every chapter of subjectID in catalog order.
// An unknown subject yields an empty result, not an error.
func SelectChapters(src ChapterSource, subjectID string) []model.Chapter {
	var out []model.Chapter
	for _, ch := range src.Chapters() {
		if ch.SubjectID == subjectID {
			out = append(out, ch)
		}
	}
	return out
}

// PickQuestions takes the first quota items of pool in order. A short pool is
// returned whole. The result never aliases pool.
func PickQuestions(pool []model.Question, quota int) []model.Question {
	n := min(max(quota, 0), len(pool))
	out := make([]model.Question, n)
	for i := range n {
		out[i] = pool[i].Clone()
	}
	return out
}
