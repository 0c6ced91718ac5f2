package session

import (
	"errors"
	"strings"
	"time"

	"hanquiz/internal/models"
)

var (
	// ErrNoQuiz means no quiz has been generated in this session yet.
	ErrNoQuiz = errors.New("no active quiz")
	// ErrBadIndex means the question index is out of range.
	ErrBadIndex = errors.New("question index out of range")
	// ErrNotCheckable means the question is an error placeholder.
	ErrNotCheckable = errors.New("error questions cannot be checked")
)

// Submission carries the user's answer for one question; only the fields of
// the question's variant are read.
type Submission struct {
	Pinyin     string   `json:"pinyin"`
	Meaning    string   `json:"meaning"`
	Answer     string   `json:"answer"`
	Order      []int    `json:"order"`
	SubAnswers []string `json:"sub_answers"`
}

// CheckResult reports overall and per-part correctness plus the full answer
// key, which the UI always reveals after a check.
type CheckResult struct {
	Correct bool `json:"correct"`

	PinyinCorrect  *bool  `json:"pinyin_correct,omitempty"`
	MeaningCorrect *bool  `json:"meaning_correct,omitempty"`
	SubResults     []bool `json:"sub_results,omitempty"`

	CorrectPinyin  string   `json:"correct_pinyin,omitempty"`
	CorrectMeaning string   `json:"correct_meaning,omitempty"`
	CorrectAnswer  string   `json:"correct_answer,omitempty"`
	CorrectOrder   []int    `json:"correct_order,omitempty"`
	CorrectSubs    []string `json:"correct_sub_answers,omitempty"`
	Explanation    string   `json:"explanation,omitempty"`

	Scored bool `json:"scored"`
	Score  int  `json:"score"`
}

// Check grades a submission against the question at index. A question adds
// to the score at most once: the first time it is checked fully correct.
// Every check, right or wrong, feeds the re-review queue.
func (s *Session) Check(index int, sub Submission) (*CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quiz == nil {
		return nil, ErrNoQuiz
	}
	question := s.quiz.Get(index)
	if question == nil {
		return nil, ErrBadIndex
	}
	if question.Type == models.TypeError {
		return nil, ErrNotCheckable
	}

	result := grade(question, sub)

	if result.Correct && !s.answered[index] {
		s.score++
		s.answered[index] = true
		result.Scored = true
	}
	result.Score = s.score

	s.review.record(index, result.Correct, time.Now().UTC())

	return result, nil
}

func grade(q *models.Question, sub Submission) *CheckResult {
	result := &CheckResult{Explanation: q.Explanation}

	switch q.Type {
	case models.TypeVocabulary:
		pinyinOK := strings.EqualFold(strings.TrimSpace(sub.Pinyin), q.Pinyin)
		meaningOK := sub.Meaning == q.Meaning
		result.PinyinCorrect = &pinyinOK
		result.MeaningCorrect = &meaningOK
		result.Correct = pinyinOK && meaningOK
		result.CorrectPinyin = q.Pinyin
		result.CorrectMeaning = q.Meaning
	case models.TypeFillGap:
		result.Correct = sub.Answer == q.Answer
		result.CorrectAnswer = q.Answer
	case models.TypeDialogueOrder:
		result.Correct = equalOrder(sub.Order, q.CorrectOrder)
		result.CorrectOrder = q.CorrectOrder
	case models.TypeReading:
		result.SubResults = make([]bool, len(q.SubAnswers))
		result.Correct = len(sub.SubAnswers) == len(q.SubAnswers)
		for i, answer := range q.SubAnswers {
			ok := i < len(sub.SubAnswers) && sub.SubAnswers[i] == answer
			result.SubResults[i] = ok
			if !ok {
				result.Correct = false
			}
		}
		result.CorrectSubs = q.SubAnswers
	}

	return result
}

// equalOrder requires an exact elementwise match; partial orderings grade
// as incorrect.
func equalOrder(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
