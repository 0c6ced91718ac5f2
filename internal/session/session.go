package session

import (
	"sync"

	"hanquiz/internal/models"
)

// Store holds one Session per browser, keyed by the session cookie value.
// Sessions are never shared across users.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it on first use.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession()
		s.sessions[id] = sess
	}
	return sess
}

// Session carries all per-user UI state: the active quiz, the cursor, the
// running score, which questions already scored, the cached option shuffle
// per question, and the re-review queue.
type Session struct {
	mu       sync.Mutex
	quiz     *models.Quiz
	current  int
	score    int
	answered map[int]bool
	options  map[int][]string
	review   *reviewQueue
}

func newSession() *Session {
	return &Session{
		answered: make(map[int]bool),
		options:  make(map[int][]string),
		review:   newReviewQueue(),
	}
}

// SetQuiz installs a freshly generated quiz and discards all previous state.
func (s *Session) SetQuiz(quiz *models.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quiz = quiz
	s.current = 0
	s.score = 0
	s.answered = make(map[int]bool)
	s.options = make(map[int][]string)
	s.review = newReviewQueue()
}

// Quiz returns the active quiz, or nil when none has been generated yet.
func (s *Session) Quiz() *models.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// Progress reports cursor, score and how many questions have scored.
func (s *Session) Progress() (current, score, answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = 0
	if s.quiz != nil {
		total = s.quiz.Len()
	}
	return s.current, s.score, len(s.answered), total
}

// Next advances the cursor, clamped at the last question.
func (s *Session) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz != nil && s.current < s.quiz.Len()-1 {
		s.current++
	}
	return s.current
}

// Prev moves the cursor back, clamped at the first question.
func (s *Session) Prev() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current > 0 {
		s.current--
	}
	return s.current
}

// Jump moves the cursor to index. Out-of-range jumps are a no-op.
func (s *Session) Jump(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz != nil && index >= 0 && index < s.quiz.Len() {
		s.current = index
	}
	return s.current
}

// Choices returns the shuffled option order for a question, computing it
// once and reusing it on every re-render of the same question.
func (s *Session) Choices(index int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz == nil {
		return nil
	}
	if cached, ok := s.options[index]; ok {
		return cached
	}
	question := s.quiz.Get(index)
	if question == nil {
		return nil
	}
	choices := question.ShuffledChoices()
	s.options[index] = choices
	return choices
}

// NextReview returns the index of the next question due for re-review, if any.
func (s *Session) NextReview() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review.next(s.answered)
}
