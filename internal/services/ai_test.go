package services

import (
	"errors"
	"strings"
	"testing"

	"hanquiz/internal/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain json", `{"title":"Bài 1"}`, `{"title":"Bài 1"}`},
		{"fenced json", "```json\n{\"title\":\"Bài 1\"}\n```", `{"title":"Bài 1"}`},
		{"fence without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"unclosed fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"chatter around object", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.content); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseQuizResponse(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		content := "```json\n" + `{
			"title": "Từ vựng HSK 1",
			"questions": [{
				"id": 1,
				"type": "chinese_to_pinyin_meaning",
				"question": "Pinyin và nghĩa của từ 学生 là gì?",
				"chinese_word": "学生",
				"pinyin": "xuéshēng",
				"meaning": "học sinh",
				"wrong_meanings": ["giáo viên", "bạn bè", "gia đình"]
			}]
		}` + "\n```"

		quiz, err := parseQuizResponse(content)
		if err != nil {
			t.Fatalf("parseQuizResponse() error = %v", err)
		}
		if quiz.Title != "Từ vựng HSK 1" || quiz.Len() != 1 {
			t.Errorf("quiz = %+v, want parsed title and one question", quiz)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := parseQuizResponse("not json at all"); err == nil {
			t.Fatal("expected error for malformed response")
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		content := `{"title":"x","questions":[{"id":1,"type":"chinese_to_pinyin_meaning","question":"q","chinese_word":"","pinyin":"p","meaning":"m"}]}`
		_, err := parseQuizResponse(content)
		if err == nil {
			t.Fatal("expected validation error for empty chinese word")
		}
		var vErr *models.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("error = %v, want wrapped ValidationError", err)
		}
	})

	t.Run("empty question list", func(t *testing.T) {
		if _, err := parseQuizResponse(`{"title":"x","questions":[]}`); err == nil {
			t.Fatal("expected error for empty quiz")
		}
	})
}

func TestInstructionNamesSchemaFields(t *testing.T) {
	for _, field := range []string{
		"title", "questions", "chinese_word", "pinyin", "meaning", "wrong_meanings",
		"sentence", "answer", "wrong_options", "fragments", "correct_order",
		"passage", "sub_questions", "sub_options", "sub_answers", "explanation",
	} {
		if !strings.Contains(instruction, field) {
			t.Errorf("instruction missing schema field %q", field)
		}
	}
	for _, typ := range []string{
		models.TypeVocabulary, models.TypeFillGap, models.TypeDialogueOrder, models.TypeReading,
	} {
		if !strings.Contains(instruction, typ) {
			t.Errorf("instruction missing question type %q", typ)
		}
	}
}
