package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"hanquiz/internal/models"
)

// stubExtractor returns canned per-page quizzes keyed by image name, or an
// error for names in fail.
type stubExtractor struct {
	quizzes map[string]*models.Quiz
	fail    map[string]error
}

func (s *stubExtractor) ExtractQuiz(_ context.Context, img ImageInput) (*models.Quiz, error) {
	if err, ok := s.fail[img.Name]; ok {
		return nil, err
	}
	return s.quizzes[img.Name], nil
}

func (s *stubExtractor) ExtractQuizFromText(_ context.Context, text string) (*models.Quiz, error) {
	if err, ok := s.fail[text]; ok {
		return nil, err
	}
	return s.quizzes[text], nil
}

func pageQuiz(title string, words ...string) *models.Quiz {
	questions := make([]models.Question, len(words))
	for i, word := range words {
		questions[i] = models.Question{
			ID:            i + 1,
			Type:          models.TypeVocabulary,
			Question:      fmt.Sprintf("Pinyin và nghĩa của từ %s là gì?", word),
			ChineseWord:   word,
			Pinyin:        "pinyin-" + word,
			Meaning:       "nghĩa " + word,
			WrongMeanings: []string{"giáo viên", "bạn bè", "gia đình"},
		}
	}
	return &models.Quiz{Title: title, Questions: questions}
}

func imageSources(names ...string) []Source {
	sources := make([]Source, len(names))
	for i, name := range names {
		sources[i] = Source{Image: &ImageInput{Name: name, Data: []byte{0x89}}}
	}
	return sources
}

func newTestGenerator(stub *stubExtractor) *QuizGenerator {
	return NewQuizGenerator(stub, zap.NewNop())
}

func TestGenerateEmptyInput(t *testing.T) {
	g := newTestGenerator(&stubExtractor{})
	quiz, err := g.Generate(context.Background(), nil)
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("Generate(nil) error = %v, want ErrNoSources", err)
	}
	if quiz != nil {
		t.Fatal("Generate(nil) should produce no quiz")
	}
}

func TestGenerateMergesInOriginalOrder(t *testing.T) {
	stub := &stubExtractor{quizzes: map[string]*models.Quiz{
		"a.png": pageQuiz("Bài 1", "学生", "老师"),
		"b.png": pageQuiz("Bài 2", "朋友"),
		"c.png": pageQuiz("Bài 3", "学校", "时间"),
	}}
	g := newTestGenerator(stub)

	quiz, err := g.Generate(context.Background(), imageSources("a.png", "b.png", "c.png"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	wantWords := []string{"学生", "老师", "朋友", "学校", "时间"}
	if quiz.Len() != len(wantWords) {
		t.Fatalf("questions = %d, want %d", quiz.Len(), len(wantWords))
	}
	for i, q := range quiz.Questions {
		if q.ID != i+1 {
			t.Errorf("question %d has id %d, want contiguous ascending ids", i, q.ID)
		}
		if q.ChineseWord != wantWords[i] {
			t.Errorf("question %d word = %q, want %q (original image order)", i, q.ChineseWord, wantWords[i])
		}
	}

	if !strings.Contains(quiz.Title, "Quiz tổng hợp từ 3 ảnh") {
		t.Errorf("title = %q, want combined title", quiz.Title)
	}
	for _, sub := range []string{"Bài 1", "Bài 2", "Bài 3"} {
		if !strings.Contains(quiz.Title, sub) {
			t.Errorf("title = %q, missing sub-title %q", quiz.Title, sub)
		}
	}
}

func TestGenerateCombinedTitleTruncation(t *testing.T) {
	stub := &stubExtractor{quizzes: map[string]*models.Quiz{}}
	names := make([]string, 5)
	for i := range names {
		names[i] = fmt.Sprintf("p%d.png", i+1)
		stub.quizzes[names[i]] = pageQuiz(fmt.Sprintf("Bài %d", i+1), fmt.Sprintf("词%d", i+1))
	}
	g := newTestGenerator(stub)

	quiz, err := g.Generate(context.Background(), imageSources(names...))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(quiz.Title, "và 2 ảnh khác") {
		t.Errorf("title = %q, want remainder count for >3 pages", quiz.Title)
	}
	if strings.Contains(quiz.Title, "Bài 4") {
		t.Errorf("title = %q, should name at most three sub-titles", quiz.Title)
	}
}

func TestGenerateDegradesFailedPage(t *testing.T) {
	stub := &stubExtractor{
		quizzes: map[string]*models.Quiz{"ok.png": pageQuiz("Bài 1", "学生")},
		fail:    map[string]error{"bad.png": errors.New("connection refused")},
	}
	g := newTestGenerator(stub)

	quiz, err := g.Generate(context.Background(), imageSources("ok.png", "bad.png"))
	if err != nil {
		t.Fatalf("Generate() error = %v, failures must not abort the batch", err)
	}
	if quiz.Len() != 2 {
		t.Fatalf("questions = %d, want 2", quiz.Len())
	}

	errQ := quiz.Questions[1]
	if errQ.Type != models.TypeError {
		t.Fatalf("failed page type = %q, want %q", errQ.Type, models.TypeError)
	}
	if !strings.Contains(errQ.Question, "ảnh 2") || !strings.Contains(errQ.Question, "connection refused") {
		t.Errorf("error question = %q, want page number and reason", errQ.Question)
	}
	if len(errQ.WrongMeanings) != 0 || len(errQ.WrongOptions) != 0 {
		t.Error("error question must have no wrong-option list")
	}
}

func TestGenerateSingleFailingImage(t *testing.T) {
	stub := &stubExtractor{fail: map[string]error{"bad.png": errors.New("boom")}}
	g := newTestGenerator(stub)

	quiz, err := g.Generate(context.Background(), imageSources("bad.png"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if quiz.Len() != 1 || quiz.Questions[0].Type != models.TypeError {
		t.Fatalf("quiz = %+v, want exactly one error question", quiz.Questions)
	}
}

// countingExtractor tracks the peak number of concurrent extraction calls.
type countingExtractor struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (c *countingExtractor) ExtractQuiz(_ context.Context, img ImageInput) (*models.Quiz, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	// Hold the slot long enough for the whole batch to pile up behind it.
	time.Sleep(10 * time.Millisecond)
	return pageQuiz("Bài "+img.Name, "词"+img.Name), nil
}

func (c *countingExtractor) ExtractQuizFromText(ctx context.Context, text string) (*models.Quiz, error) {
	return c.ExtractQuiz(ctx, ImageInput{Name: text})
}

func TestGenerateBoundsConcurrency(t *testing.T) {
	t.Run("large batch caps at the limit", func(t *testing.T) {
		stub := &countingExtractor{}
		g := NewQuizGenerator(stub, zap.NewNop())

		names := make([]string, 20)
		for i := range names {
			names[i] = fmt.Sprintf("p%d.png", i+1)
		}
		quiz, err := g.Generate(context.Background(), imageSources(names...))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if quiz.Len() != len(names) {
			t.Fatalf("questions = %d, want one per page", quiz.Len())
		}
		if peak := stub.peak.Load(); peak > maxConcurrentExtractions {
			t.Errorf("peak in-flight extractions = %d, want <= %d", peak, maxConcurrentExtractions)
		}
	})

	t.Run("small batch caps at the source count", func(t *testing.T) {
		stub := &countingExtractor{}
		g := NewQuizGenerator(stub, zap.NewNop())

		if _, err := g.Generate(context.Background(), imageSources("a.png", "b.png", "c.png")); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if peak := stub.peak.Load(); peak > 3 {
			t.Errorf("peak in-flight extractions = %d, want <= 3", peak)
		}
	})
}

func TestDistractorDedup(t *testing.T) {
	t.Run("drops duplicates and collisions with correct answer", func(t *testing.T) {
		quiz := &models.Quiz{Questions: []models.Question{
			{
				Type: models.TypeVocabulary, Question: "q1", ChineseWord: "学生",
				Pinyin: "xuéshēng", Meaning: "học sinh",
				WrongMeanings: []string{"Học Sinh", "giáo viên", "giáo viên", "bạn bè"},
			},
			{
				Type: models.TypeVocabulary, Question: "q2", ChineseWord: "老师",
				Pinyin: "lǎoshī", Meaning: "giáo viên",
				WrongMeanings: []string{"GIÁO VIÊN", "bạn bè", "học sinh"},
			},
		}}
		dedupeDistractors(quiz)

		for qi := range quiz.Questions {
			q := &quiz.Questions[qi]
			if len(q.WrongMeanings) < 3 {
				t.Fatalf("question %d has %d distractors, want >= 3", qi+1, len(q.WrongMeanings))
			}
			correct := strings.ToLower(q.Meaning)
			for _, wrong := range q.WrongMeanings {
				if strings.EqualFold(wrong, correct) {
					t.Errorf("question %d distractor %q equals its correct answer", qi+1, wrong)
				}
			}
		}

		// No option may repeat, case-insensitively, anywhere in the quiz.
		seen := make(map[string]bool)
		for _, q := range quiz.Questions {
			for _, wrong := range q.WrongMeanings {
				key := strings.ToLower(wrong)
				if seen[key] {
					t.Errorf("distractor %q repeated across merged quiz", wrong)
				}
				seen[key] = true
			}
		}
	})

	t.Run("backfills gap-fill options too", func(t *testing.T) {
		quiz := &models.Quiz{Questions: []models.Question{
			{Type: models.TypeFillGap, Question: "q", Sentence: "我是___。", Answer: "学生"},
		}}
		dedupeDistractors(quiz)
		if len(quiz.Questions[0].WrongOptions) < 3 {
			t.Fatalf("gap question has %d options, want >= 3", len(quiz.Questions[0].WrongOptions))
		}
	})

	t.Run("generic fillers cover an exhausted pool", func(t *testing.T) {
		count := len(fallbackDistractors)/3 + 3
		questions := make([]models.Question, count)
		for i := range questions {
			questions[i] = models.Question{
				Type: models.TypeVocabulary, Question: fmt.Sprintf("q%d", i),
				ChineseWord: fmt.Sprintf("词%d", i), Pinyin: "p", Meaning: fmt.Sprintf("nghĩa %d", i),
			}
		}
		quiz := &models.Quiz{Questions: questions}
		dedupeDistractors(quiz)
		for i := range quiz.Questions {
			if got := len(quiz.Questions[i].WrongMeanings); got < 3 {
				t.Fatalf("question %d has %d distractors after pool exhaustion, want >= 3", i+1, got)
			}
		}

		// Five questions drain the fallback pool, the sixth takes the plain
		// fillers, so the seventh gets the first numbered batch.
		suffixed := quiz.Questions[6].WrongMeanings
		found := false
		for _, wrong := range suffixed {
			if wrong == "từ khác 1" {
				found = true
			}
			if strings.HasSuffix(wrong, " 0") {
				t.Errorf("filler %q numbered from zero", wrong)
			}
		}
		if !found {
			t.Errorf("first numbered fillers = %v, want counter starting at 1", suffixed)
		}
	})

	t.Run("skips error and dialogue questions", func(t *testing.T) {
		quiz := &models.Quiz{Questions: []models.Question{
			models.NewErrorQuestion("Lỗi"),
			{Type: models.TypeDialogueOrder, Question: "q", Fragments: []string{"a", "b"}, CorrectOrder: []int{0, 1}},
		}}
		dedupeDistractors(quiz)
		if len(quiz.Questions[0].WrongMeanings) != 0 || len(quiz.Questions[1].WrongOptions) != 0 {
			t.Error("non-choice questions must stay untouched")
		}
	})
}
