package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"hanquiz/internal/models"
)

// ErrAIUnavailable is returned when the OpenAI integration is not configured.
var ErrAIUnavailable = errors.New("openai integration is not configured")

// instruction is the fixed Vietnamese prompt sent with every note page. It
// names the exact JSON fields so the response unmarshals straight into the
// quiz schema.
const instruction = `Bạn là giáo viên tiếng Trung. Đây là một trang ghi chú gồm từ Hán, pinyin, loại từ, và nghĩa tiếng Việt. ` +
	`Hãy tạo 8–12 câu hỏi quiz trộn các dạng sau:
- 'chinese_to_pinyin_meaning': hiển thị từ tiếng Trung, học sinh điền pinyin (text input) và chọn nghĩa đúng (multiple choice)
- 'fill_in_the_gap': câu tiếng Trung có chỗ trống '___', học sinh chọn từ đúng để điền
- 'dialogue_reordering': các câu thoại bị xáo trộn, học sinh sắp xếp lại đúng thứ tự
- 'reading_comprehension': đoạn văn ngắn kèm 2-3 câu hỏi phụ trắc nghiệm
Trả về JSON với:
- title: tên bài quiz (dựa trên nội dung trang ghi chú)
- questions: danh sách câu hỏi, mỗi câu có:
  * id: số thứ tự
  * type: một trong các dạng ở trên
  * question: câu hỏi, ví dụ 'Pinyin và nghĩa của từ [từ tiếng Trung] là gì?'
  * chinese_word, pinyin, meaning, wrong_meanings (3-4 nghĩa sai): cho dạng chinese_to_pinyin_meaning
  * sentence, answer, wrong_options (3-4 từ sai): cho dạng fill_in_the_gap
  * fragments, correct_order (chỉ số bắt đầu từ 0): cho dạng dialogue_reordering
  * passage, sub_questions, sub_options, sub_answers: cho dạng reading_comprehension
  * explanation: giải thích thêm (nếu có)
Ví dụ: question='Pinyin và nghĩa của từ 学生 là gì?', chinese_word='学生', pinyin='xuéshēng', meaning='học sinh', wrong_meanings=['giáo viên', 'bạn bè', 'gia đình']`

// ExtractionService turns one page of study notes into a validated quiz via
// a multimodal chat completion.
type ExtractionService struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewExtractionService(apiKey, model, endpoint string, log *zap.Logger) *ExtractionService {
	if apiKey == "" {
		return &ExtractionService{log: log}
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &ExtractionService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log,
	}
}

func (s *ExtractionService) disabled() bool {
	return s.client == nil || s.model == ""
}

// ExtractQuiz sends one image with the fixed instruction and parses the
// structured response. Callers degrade failures into an in-quiz error entry.
func (s *ExtractionService) ExtractQuiz(ctx context.Context, img ImageInput) (*models.Quiz, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: instruction,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURI,
						},
					},
				},
			},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	return s.complete(ctx, req)
}

// ExtractQuizFromText runs the same instruction against plain note text,
// used for uploaded PDF pages.
func (s *ExtractionService) ExtractQuizFromText(ctx context.Context, text string) (*models.Quiz, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("note text is empty")
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: instruction + "\n\nNội dung trang ghi chú:\n" + text,
			},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	return s.complete(ctx, req)
}

func (s *ExtractionService) complete(ctx context.Context, req openai.ChatCompletionRequest) (*models.Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	quiz, err := parseQuizResponse(resp.Choices[0].Message.Content)
	if err != nil {
		s.log.Warn("quiz response failed validation",
			zap.Error(err),
			zap.String("raw", resp.Choices[0].Message.Content))
		return nil, err
	}
	return quiz, nil
}

// parseQuizResponse strips markdown fences, unmarshals the JSON payload and
// forces it through schema validation.
func parseQuizResponse(content string) (*models.Quiz, error) {
	var payload struct {
		Title     string            `json:"title"`
		Questions []models.Question `json:"questions"`
	}
	jsonStr := extractJSON(content)
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal quiz json: %w", err)
	}
	quiz, err := models.NewQuiz(payload.Title, payload.Questions)
	if err != nil {
		return nil, fmt.Errorf("validate quiz: %w", err)
	}
	return quiz, nil
}

// extractJSON removes markdown code block formatting if present and extracts
// the JSON object.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}
