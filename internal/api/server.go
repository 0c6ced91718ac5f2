package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hanquiz/internal/models"
	"hanquiz/internal/services"
	"hanquiz/internal/session"
)

const (
	maxMultipartMemory = 32 << 20 // 32 MB
	sessionCookie      = "hanquiz_session"
)

// Server exposes the quiz workflow as a JSON API consumed by the bundled
// single-page UI.
type Server struct {
	mux       *http.ServeMux
	sessions  *session.Store
	generator *services.QuizGenerator
	pdf       *services.PDFService
	archive   *services.ArchiveService
	sample    string
	log       *zap.Logger
}

func NewServer(
	generator *services.QuizGenerator,
	pdf *services.PDFService,
	archive *services.ArchiveService,
	samplePath string,
	log *zap.Logger,
) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		sessions:  session.NewStore(),
		generator: generator,
		pdf:       pdf,
		archive:   archive,
		sample:    samplePath,
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/quiz/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/quiz", s.handleQuizOverview)
	s.mux.HandleFunc("/api/quiz/questions/", s.handleQuestionActions)
	s.mux.HandleFunc("/api/quiz/navigate", s.handleNavigate)
	s.mux.HandleFunc("/api/quiz/export", s.handleExport)
	s.mux.HandleFunc("/api/review/next", s.handleNextReview)
	s.mux.HandleFunc("/api/archive", s.handleArchive)
	s.mux.HandleFunc("/api/archive/", s.handleArchiveActions)
}

// sessionFor resolves the caller's session from the cookie, minting a new
// session id on first contact.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return s.sessions.Get(cookie.Value)
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.sessions.Get(id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	sess := s.sessionFor(w, r)

	sources, err := s.collectSources(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A submitted batch always runs to completion; the request context is
	// deliberately not used so a dropped connection cannot abort it.
	quiz, err := s.generator.Generate(context.Background(), sources)
	if err != nil {
		if errors.Is(err, services.ErrNoSources) {
			writeError(w, http.StatusBadRequest, "no images uploaded")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess.SetQuiz(quiz)
	s.log.Info("quiz generated",
		zap.Int("pages", len(sources)), zap.Int("questions", quiz.Len()))

	writeJSON(w, http.StatusOK, map[string]any{
		"title": quiz.Title,
		"total": quiz.Len(),
	})
}

// collectSources turns the multipart upload into ordered extraction sources:
// PNG/JPEG files pass through as images, PDFs contribute one text source per
// page, and the bundled sample image stands in when nothing was uploaded.
func (s *Server) collectSources(r *http.Request) ([]services.Source, error) {
	var sources []services.Source

	files := r.MultipartForm.File["files"]
	for _, header := range files {
		data, err := readUpload(header)
		if err != nil {
			return nil, err
		}

		if strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			texts, err := s.pdf.ExtractPageTexts(data)
			if err != nil {
				return nil, fmt.Errorf("read pdf %s: %w", header.Filename, err)
			}
			for _, text := range texts {
				sources = append(sources, services.Source{Text: text})
			}
			continue
		}

		mime := header.Header.Get("Content-Type")
		sources = append(sources, services.Source{
			Image: &services.ImageInput{Name: header.Filename, MIME: mime, Data: data},
		})
	}

	if len(sources) == 0 && r.FormValue("useSample") == "true" {
		data, err := os.ReadFile(s.sample)
		if err != nil {
			return nil, fmt.Errorf("sample image unavailable: %w", err)
		}
		sources = append(sources, services.Source{
			Image: &services.ImageInput{Name: filepath.Base(s.sample), MIME: "image/jpeg", Data: data},
		})
	}

	return sources, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	return data, nil
}

func (s *Server) handleQuizOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sess := s.sessionFor(w, r)
	quiz := sess.Quiz()
	if quiz == nil {
		writeError(w, http.StatusNotFound, "no quiz generated yet")
		return
	}

	current, score, answered, total := sess.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"title":    quiz.Title,
		"total":    total,
		"current":  current,
		"score":    score,
		"answered": answered,
	})
}

func (s *Server) handleQuestionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/quiz/questions/"), "/")
	parts := strings.Split(path, "/")

	index, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question index")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetQuestion(w, r, index)
	case len(parts) == 2 && parts[1] == "check" && r.Method == http.MethodPost:
		s.handleCheck(w, r, index)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request, index int) {
	sess := s.sessionFor(w, r)
	quiz := sess.Quiz()
	if quiz == nil {
		writeError(w, http.StatusNotFound, "no quiz generated yet")
		return
	}
	question := quiz.Get(index)
	if question == nil {
		writeError(w, http.StatusNotFound, "question index out of range")
		return
	}

	// Answer-key fields stay server-side; choices come pre-shuffled from the
	// session cache so re-renders are stable.
	view := map[string]any{
		"id":       question.ID,
		"type":     question.Type,
		"question": question.Question,
		"index":    index,
	}
	switch question.Type {
	case models.TypeVocabulary:
		view["chinese_word"] = question.ChineseWord
		view["choices"] = sess.Choices(index)
	case models.TypeFillGap:
		view["sentence"] = question.Sentence
		view["choices"] = sess.Choices(index)
	case models.TypeDialogueOrder:
		view["fragments"] = question.Fragments
	case models.TypeReading:
		view["passage"] = question.Passage
		view["sub_questions"] = question.SubQuestions
		view["sub_options"] = question.SubOptions
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request, index int) {
	sess := s.sessionFor(w, r)

	var sub session.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := sess.Check(index, sub)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoQuiz), errors.Is(err, session.ErrBadIndex):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrNotCheckable):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload struct {
		Action string `json:"action"`
		Index  int    `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sess := s.sessionFor(w, r)
	if sess.Quiz() == nil {
		writeError(w, http.StatusNotFound, "no quiz generated yet")
		return
	}

	var current int
	switch payload.Action {
	case "next":
		current = sess.Next()
	case "prev":
		current = sess.Prev()
	case "jump":
		current = sess.Jump(payload.Index)
	default:
		writeError(w, http.StatusBadRequest, "action must be next, prev or jump")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"current": current})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sess := s.sessionFor(w, r)
	quiz := sess.Quiz()
	if quiz == nil {
		writeError(w, http.StatusNotFound, "no quiz generated yet")
		return
	}

	transcript := services.BuildTranscript(quiz)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="quiz_output.txt"`)
	_, _ = io.WriteString(w, transcript)
}

func (s *Server) handleNextReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sess := s.sessionFor(w, r)
	if sess.Quiz() == nil {
		writeError(w, http.StatusNotFound, "no quiz generated yet")
		return
	}

	index, ok := sess.NextReview()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"index": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.archive.ListQuizzes(r.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quizzes": entries})
	case http.MethodPost:
		sess := s.sessionFor(w, r)
		quiz := sess.Quiz()
		if quiz == nil {
			writeError(w, http.StatusNotFound, "no quiz generated yet")
			return
		}
		id, err := s.archive.SaveQuiz(r.Context(), quiz)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleArchiveActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/archive/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "load" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz id")
		return
	}

	quiz, err := s.archive.GetQuiz(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrQuizNotFound) {
			writeError(w, http.StatusNotFound, "quiz not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess := s.sessionFor(w, r)
	sess.SetQuiz(quiz)
	writeJSON(w, http.StatusOK, map[string]any{
		"title": quiz.Title,
		"total": quiz.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
