package services

import (
	"fmt"
	"strings"

	"hanquiz/internal/models"
)

// BuildTranscript serializes the whole quiz to a flat human-readable text
// document for download. Formatting only; the quiz is already validated.
func BuildTranscript(quiz *models.Quiz) string {
	var b strings.Builder

	fmt.Fprintf(&b, "QUIZ TITLE: %s\n", quiz.Title)
	fmt.Fprintf(&b, "Total Questions: %d\n\n", quiz.Len())

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		fmt.Fprintf(&b, "Question %d:\n", i+1)
		fmt.Fprintf(&b, "Type: %s\n", q.Type)
		fmt.Fprintf(&b, "Question: %s\n", q.Question)

		switch q.Type {
		case models.TypeVocabulary:
			fmt.Fprintf(&b, "Chinese Word: %s\n", q.ChineseWord)
			fmt.Fprintf(&b, "Correct Pinyin: %s\n", q.Pinyin)
			fmt.Fprintf(&b, "Correct Meaning: %s\n", q.Meaning)
			fmt.Fprintf(&b, "Wrong Options: %s\n", strings.Join(q.WrongMeanings, ", "))
		case models.TypeFillGap:
			fmt.Fprintf(&b, "Sentence: %s\n", q.Sentence)
			fmt.Fprintf(&b, "Correct Answer: %s\n", q.Answer)
			fmt.Fprintf(&b, "Wrong Options: %s\n", strings.Join(q.WrongOptions, ", "))
		case models.TypeDialogueOrder:
			for j, fragment := range q.Fragments {
				fmt.Fprintf(&b, "Fragment %d: %s\n", j+1, fragment)
			}
			order := make([]string, len(q.CorrectOrder))
			for j, idx := range q.CorrectOrder {
				order[j] = fmt.Sprintf("%d", idx+1)
			}
			fmt.Fprintf(&b, "Correct Order: %s\n", strings.Join(order, " -> "))
		case models.TypeReading:
			fmt.Fprintf(&b, "Passage: %s\n", q.Passage)
			for j, sub := range q.SubQuestions {
				fmt.Fprintf(&b, "Sub-question %d: %s\n", j+1, sub)
				if j < len(q.SubOptions) {
					fmt.Fprintf(&b, "Options: %s\n", strings.Join(q.SubOptions[j], ", "))
				}
				if j < len(q.SubAnswers) {
					fmt.Fprintf(&b, "Correct Answer: %s\n", q.SubAnswers[j])
				}
			}
		}

		if q.Explanation != "" {
			fmt.Fprintf(&b, "Explanation: %s\n", q.Explanation)
		}
		b.WriteString(strings.Repeat("-", 40) + "\n")
	}

	return b.String()
}
