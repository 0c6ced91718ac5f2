package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"hanquiz/internal/models"
)

// ErrNoSources is returned when a generation request carries no pages.
var ErrNoSources = errors.New("no note pages provided")

// maxConcurrentExtractions caps in-flight LLM calls per batch.
const maxConcurrentExtractions = 6

// ImageInput is one uploaded note photo.
type ImageInput struct {
	Name string
	MIME string
	Data []byte
}

// Source is one page of study notes: either an image or extracted text.
type Source struct {
	Image *ImageInput
	Text  string
}

// Extractor produces a single-page quiz from one source.
type Extractor interface {
	ExtractQuiz(ctx context.Context, img ImageInput) (*models.Quiz, error)
	ExtractQuizFromText(ctx context.Context, text string) (*models.Quiz, error)
}

// QuizGenerator fans out one extraction call per source and merges the
// per-page quizzes into a single combined quiz.
type QuizGenerator struct {
	extractor Extractor
	log       *zap.Logger
}

func NewQuizGenerator(extractor Extractor, log *zap.Logger) *QuizGenerator {
	return &QuizGenerator{extractor: extractor, log: log}
}

// Generate runs the whole pipeline. Failed extractions degrade into a
// one-question error quiz for that page; only an empty source list fails
// the batch.
func (g *QuizGenerator) Generate(ctx context.Context, sources []Source) (*models.Quiz, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	limit := maxConcurrentExtractions
	if len(sources) < limit {
		limit = len(sources)
	}

	// Results land at their source's index so assembly stays in original
	// page order regardless of completion order.
	results := make([]*models.Quiz, len(sources))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, limit)

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, src Source) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = g.extractOne(ctx, idx, src)
		}(i, src)
	}

	wg.Wait()

	combined := mergeQuizzes(results, len(sources))
	dedupeDistractors(combined)
	return combined, nil
}

func (g *QuizGenerator) extractOne(ctx context.Context, idx int, src Source) *models.Quiz {
	var (
		quiz *models.Quiz
		err  error
	)
	if src.Image != nil {
		quiz, err = g.extractor.ExtractQuiz(ctx, *src.Image)
	} else {
		quiz, err = g.extractor.ExtractQuizFromText(ctx, src.Text)
	}
	if err != nil {
		g.log.Warn("extraction failed, degrading to error question",
			zap.Int("page", idx+1), zap.Error(err))
		return &models.Quiz{
			Title: fmt.Sprintf("Lỗi - Ảnh %d", idx+1),
			Questions: []models.Question{
				models.NewErrorQuestion(fmt.Sprintf("Lỗi khi tạo quiz từ ảnh %d: %v", idx+1, err)),
			},
		}
	}
	g.log.Info("page extracted",
		zap.Int("page", idx+1), zap.Int("questions", quiz.Len()))
	return quiz
}

// mergeQuizzes concatenates per-page quizzes in page order, renumbering ids
// 1..N, and builds the combined title from up to three page titles.
func mergeQuizzes(parts []*models.Quiz, pageCount int) *models.Quiz {
	var combined []models.Question
	titles := make([]string, 0, len(parts))

	id := 1
	for _, part := range parts {
		titles = append(titles, part.Title)
		for _, question := range part.Questions {
			question.ID = id
			combined = append(combined, question)
			id++
		}
	}

	title := fmt.Sprintf("Quiz tổng hợp từ %d ảnh: %s", pageCount, strings.Join(titles[:min(3, len(titles))], ", "))
	if len(titles) > 3 {
		title += fmt.Sprintf(" và %d ảnh khác", len(titles)-3)
	}

	return &models.Quiz{Title: title, Questions: combined}
}

// fallbackDistractors backfills wrong-option lists that came up short after
// dedup. The pool is generic enough to stay plausible next to any word.
var fallbackDistractors = []string{
	"giáo viên",
	"bạn bè",
	"gia đình",
	"công việc",
	"trường học",
	"thời gian",
	"đồ ăn",
	"màu sắc",
	"con vật",
	"quần áo",
	"thời tiết",
	"phương tiện",
	"cảm xúc",
	"địa điểm",
	"số đếm",
}

// genericFillers guarantee the three-option minimum even when the fallback
// pool is exhausted by a large batch.
var genericFillers = []string{"từ khác", "nghĩa khác", "cách đọc khác"}

// dedupeDistractors enforces the post-merge invariant: every
// distractor-bearing question ends up with at least three wrong options, and
// no option (case-folded) repeats its question's correct answer, another
// option of the same question, or any option already used across the whole
// merged quiz.
func dedupeDistractors(quiz *models.Quiz) {
	used := make(map[string]bool)

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if !q.NeedsDistractors() {
			continue
		}

		correct := strings.ToLower(strings.TrimSpace(q.CorrectChoice()))
		kept := make([]string, 0, len(q.Distractors()))
		for _, candidate := range q.Distractors() {
			key := strings.ToLower(strings.TrimSpace(candidate))
			if key == "" || key == correct || used[key] {
				continue
			}
			used[key] = true
			kept = append(kept, candidate)
		}

		for _, candidate := range fallbackDistractors {
			if len(kept) >= 3 {
				break
			}
			key := strings.ToLower(candidate)
			if key == correct || used[key] {
				continue
			}
			used[key] = true
			kept = append(kept, candidate)
		}

		for n := 0; len(kept) < 3; n++ {
			candidate := genericFillers[n%len(genericFillers)]
			if n >= len(genericFillers) {
				candidate = fmt.Sprintf("%s %d", candidate, n/len(genericFillers))
			}
			key := strings.ToLower(candidate)
			if key == correct || used[key] {
				continue
			}
			used[key] = true
			kept = append(kept, candidate)
		}

		q.SetDistractors(kept)
	}
}
