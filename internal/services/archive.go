package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hanquiz/internal/models"
)

// ErrQuizNotFound indicates a requested archive entry does not exist.
var ErrQuizNotFound = errors.New("quiz not found")

// ArchiveEntry is one saved quiz in list views.
type ArchiveEntry struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ArchiveService persists generated quizzes so they can be reloaded later.
// Questions are stored one row each with their variant fields JSON-encoded,
// since the five variants share no useful column set.
type ArchiveService struct {
	db *sql.DB
}

func NewArchiveService(db *sql.DB) *ArchiveService {
	return &ArchiveService{db: db}
}

// SaveQuiz stores a quiz and returns its archive id.
func (s *ArchiveService) SaveQuiz(ctx context.Context, quiz *models.Quiz) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quizzes (title, question_count, created_at)
		VALUES (?, ?, ?);
	`, quiz.Title, quiz.Len(), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert quiz: %w", err)
	}
	quizID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("quiz id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO questions (quiz_id, position, question_type, payload)
		VALUES (?, ?, ?, ?);
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare question insert: %w", err)
	}
	defer stmt.Close()

	for i := range quiz.Questions {
		var payload []byte
		payload, err = json.Marshal(&quiz.Questions[i])
		if err != nil {
			return 0, fmt.Errorf("encode question %d: %w", i+1, err)
		}
		if _, err = stmt.ExecContext(ctx, quizID, i, quiz.Questions[i].Type, payload); err != nil {
			return 0, fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit quiz: %w", err)
	}
	return quizID, nil
}

// ListQuizzes returns the most recently saved quizzes.
func (s *ArchiveService) ListQuizzes(ctx context.Context, limit int) ([]ArchiveEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, question_count, created_at
		FROM quizzes
		ORDER BY created_at DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var entry ArchiveEntry
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.QuestionCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}
	return entries, nil
}

// GetQuiz reloads one saved quiz in its original question order.
func (s *ArchiveService) GetQuiz(ctx context.Context, id int64) (*models.Quiz, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM quizzes WHERE id = ?;`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM questions
		WHERE quiz_id = ?
		ORDER BY position ASC;
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load questions for quiz %d: %w", id, err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		var question models.Question
		if err := json.Unmarshal(payload, &question); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	if len(questions) == 0 {
		return nil, ErrQuizNotFound
	}
	return &models.Quiz{Title: title, Questions: questions}, nil
}
