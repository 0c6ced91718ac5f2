package models

import (
	"fmt"
	"math/rand"
	"strings"
)

// Question type discriminator values produced by the extraction prompt.
const (
	TypeVocabulary    = "chinese_to_pinyin_meaning"
	TypeFillGap       = "fill_in_the_gap"
	TypeDialogueOrder = "dialogue_reordering"
	TypeReading       = "reading_comprehension"
	TypeError         = "error"
)

// ValidationError reports a question or quiz that failed schema validation.
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

func NewValidationError(message string) error {
	return &ValidationError{message: message}
}

// Question is a single quiz entry. The Type field selects which of the
// variant fields are populated; the rest stay at their zero value.
type Question struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Question string `json:"question"`

	// chinese_to_pinyin_meaning
	ChineseWord   string   `json:"chinese_word,omitempty"`
	Pinyin        string   `json:"pinyin,omitempty"`
	Meaning       string   `json:"meaning,omitempty"`
	WrongMeanings []string `json:"wrong_meanings,omitempty"`

	// fill_in_the_gap
	Sentence     string   `json:"sentence,omitempty"`
	Answer       string   `json:"answer,omitempty"`
	WrongOptions []string `json:"wrong_options,omitempty"`

	// dialogue_reordering
	Fragments    []string `json:"fragments,omitempty"`
	CorrectOrder []int    `json:"correct_order,omitempty"`

	// reading_comprehension
	Passage      string     `json:"passage,omitempty"`
	SubQuestions []string   `json:"sub_questions,omitempty"`
	SubOptions   [][]string `json:"sub_options,omitempty"`
	SubAnswers   []string   `json:"sub_answers,omitempty"`

	Explanation string `json:"explanation,omitempty"`
}

// Quiz is an ordered, non-empty list of questions with a display title.
type Quiz struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// NewErrorQuestion builds the placeholder entry a failed extraction
// degrades into. It carries the failure text as its question and nothing else.
func NewErrorQuestion(reason string) Question {
	return Question{
		ID:       1,
		Type:     TypeError,
		Question: reason,
	}
}

// Normalize trims every textual field and drops blank list entries.
// It runs before validation so the LLM's whitespace never fails a quiz.
func (q *Question) Normalize() {
	q.Type = strings.TrimSpace(q.Type)
	q.Question = strings.TrimSpace(q.Question)
	q.ChineseWord = strings.TrimSpace(q.ChineseWord)
	q.Pinyin = strings.TrimSpace(q.Pinyin)
	q.Meaning = strings.TrimSpace(q.Meaning)
	q.Sentence = strings.TrimSpace(q.Sentence)
	q.Answer = strings.TrimSpace(q.Answer)
	q.Passage = strings.TrimSpace(q.Passage)
	q.Explanation = strings.TrimSpace(q.Explanation)
	q.WrongMeanings = cleanList(q.WrongMeanings)
	q.WrongOptions = cleanList(q.WrongOptions)
	q.Fragments = cleanList(q.Fragments)
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// Validate checks the variant-specific required fields. Error questions
// only need their reason text.
func (q *Question) Validate() error {
	if q.Question == "" {
		return NewValidationError("question text cannot be empty")
	}

	switch q.Type {
	case TypeVocabulary:
		if q.ChineseWord == "" {
			return NewValidationError("chinese word cannot be empty")
		}
		if q.Pinyin == "" {
			return NewValidationError("pinyin cannot be empty")
		}
		if q.Meaning == "" {
			return NewValidationError("meaning cannot be empty")
		}
	case TypeFillGap:
		if q.Sentence == "" {
			return NewValidationError("gap sentence cannot be empty")
		}
		if q.Answer == "" {
			return NewValidationError("gap answer cannot be empty")
		}
	case TypeDialogueOrder:
		if len(q.Fragments) < 2 {
			return NewValidationError("dialogue needs at least two fragments")
		}
		if len(q.CorrectOrder) != len(q.Fragments) {
			return NewValidationError("correct order must cover every fragment")
		}
		seen := make(map[int]bool, len(q.CorrectOrder))
		for _, idx := range q.CorrectOrder {
			if idx < 0 || idx >= len(q.Fragments) || seen[idx] {
				return NewValidationError("correct order must be a permutation of fragment indices")
			}
			seen[idx] = true
		}
	case TypeReading:
		if q.Passage == "" {
			return NewValidationError("reading passage cannot be empty")
		}
		if len(q.SubQuestions) == 0 {
			return NewValidationError("reading needs at least one sub-question")
		}
		if len(q.SubAnswers) != len(q.SubQuestions) || len(q.SubOptions) != len(q.SubQuestions) {
			return NewValidationError("sub-answers and sub-options must parallel sub-questions")
		}
		for i, answer := range q.SubAnswers {
			if strings.TrimSpace(answer) == "" {
				return NewValidationError(fmt.Sprintf("sub-answer %d cannot be empty", i+1))
			}
		}
	case TypeError:
		// Reason text already checked above.
	default:
		return NewValidationError(fmt.Sprintf("unknown question type %q", q.Type))
	}
	return nil
}

// NeedsDistractors reports whether the merge pass must guarantee this
// question at least three wrong options.
func (q *Question) NeedsDistractors() bool {
	return q.Type == TypeVocabulary || q.Type == TypeFillGap
}

// CorrectChoice returns the correct multiple-choice text for
// distractor-bearing variants, or "" for the others.
func (q *Question) CorrectChoice() string {
	switch q.Type {
	case TypeVocabulary:
		return q.Meaning
	case TypeFillGap:
		return q.Answer
	default:
		return ""
	}
}

// Distractors returns the wrong-option list for distractor-bearing variants.
func (q *Question) Distractors() []string {
	switch q.Type {
	case TypeVocabulary:
		return q.WrongMeanings
	case TypeFillGap:
		return q.WrongOptions
	default:
		return nil
	}
}

// SetDistractors replaces the wrong-option list after the merge pass.
func (q *Question) SetDistractors(options []string) {
	switch q.Type {
	case TypeVocabulary:
		q.WrongMeanings = options
	case TypeFillGap:
		q.WrongOptions = options
	}
}

// ShuffledChoices returns the correct choice plus distractors in random
// order. Callers cache the result so a question renders stably.
func (q *Question) ShuffledChoices() []string {
	correct := q.CorrectChoice()
	if correct == "" {
		return nil
	}
	options := append([]string{correct}, q.Distractors()...)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

// NewQuiz validates every question and rejects empty quizzes.
func NewQuiz(title string, questions []Question) (*Quiz, error) {
	if len(questions) == 0 {
		return nil, NewValidationError("quiz must have at least one question")
	}
	for i := range questions {
		questions[i].Normalize()
		if err := questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	if title = strings.TrimSpace(title); title == "" {
		title = "Quiz"
	}
	return &Quiz{Title: title, Questions: questions}, nil
}

// Len returns the number of questions.
func (z *Quiz) Len() int {
	return len(z.Questions)
}

// Get returns the question at index or nil when out of range.
func (z *Quiz) Get(index int) *Question {
	if index < 0 || index >= len(z.Questions) {
		return nil
	}
	return &z.Questions[index]
}
