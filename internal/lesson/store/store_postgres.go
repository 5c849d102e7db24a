package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizdeck/internal/lesson/models"
	id "quizdeck/pkg/domain"
	dErrors "quizdeck/pkg/domainerrors"
	"quizdeck/pkg/requestcontext"
	txcontext "quizdeck/pkg/tx"
)

// PostgresStore persists lessons, questions and answers. It is pure I/O;
// scoring and attempt commits live in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const lessonColumns = `id, user_id, document_id, title, status, difficulty,
	total_questions, completed_questions, score, last_score, total_attempts,
	average_score, last_accessed, created_at`

func scanLesson(row interface{ Scan(...any) error }) (*models.Lesson, error) {
	var l models.Lesson
	var rawID, rawDoc string
	var userID sql.NullString
	err := row.Scan(&rawID, &userID, &rawDoc, &l.Title, &l.Status, &l.Difficulty,
		&l.TotalQuestions, &l.CompletedQuestions, &l.Score, &l.LastScore,
		&l.TotalAttempts, &l.AverageScore, &l.LastAccessed, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.ID = id.LessonID(rawID)
	l.DocumentID = id.DocumentID(rawDoc)
	if userID.Valid {
		l.UserID = id.UserID(userID.String)
	}
	return &l, nil
}

func nullableID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) CreateLesson(ctx context.Context, l *models.Lesson) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO lessons (id, user_id, document_id, title, status, difficulty, total_questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID.String(), nullableID(l.UserID.String()), l.DocumentID.String(),
		l.Title, string(l.Status), string(l.Difficulty), l.TotalQuestions,
	)
	if err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLesson(ctx context.Context, lessonID id.LessonID) (*models.Lesson, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, lessonID.String())
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

// GuestOwner returns the guest identity owning the lesson's document, or nil
// id when the document belongs to a user.
func (s *PostgresStore) GuestOwner(ctx context.Context, lessonID id.LessonID) (id.GuestID, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT d.guest_id
		FROM lessons l
		JOIN documents d ON d.id = l.document_id
		WHERE l.id = $1`,
		lessonID.String(),
	)
	var guestID sql.NullString
	if err := row.Scan(&guestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", dErrors.New(dErrors.CodeNotFound, "lesson not found")
		}
		return "", fmt.Errorf("get lesson guest owner: %w", err)
	}
	if !guestID.Valid {
		return "", nil
	}
	return id.GuestID(guestID.String), nil
}

// SaveProgress writes the mutable lesson fields.
func (s *PostgresStore) SaveProgress(ctx context.Context, l *models.Lesson) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		UPDATE lessons
		SET status = $2, total_questions = $3, completed_questions = $4, score = $5,
		    last_score = $6, total_attempts = $7, average_score = $8, last_accessed = $9
		WHERE id = $1`,
		l.ID.String(), string(l.Status), l.TotalQuestions, l.CompletedQuestions, l.Score,
		l.LastScore, l.TotalAttempts, l.AverageScore, requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("save lesson progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save lesson progress rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	return nil
}

func (s *PostgresStore) ListLessonsForUser(ctx context.Context, userID id.UserID) ([]*models.Lesson, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE user_id = $1 ORDER BY last_accessed DESC`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list lessons for user: %w", err)
	}
	return collectLessons(rows)
}

func (s *PostgresStore) ListLessonsForGuest(ctx context.Context, guestID id.GuestID) ([]*models.Lesson, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `
		SELECT `+lessonPrefixedColumns+`
		FROM lessons l
		JOIN documents d ON d.id = l.document_id
		WHERE d.guest_id = $1 AND l.user_id IS NULL
		ORDER BY l.last_accessed DESC`,
		guestID.String())
	if err != nil {
		return nil, fmt.Errorf("list lessons for guest: %w", err)
	}
	return collectLessons(rows)
}

const lessonPrefixedColumns = `l.id, l.user_id, l.document_id, l.title, l.status,
	l.difficulty, l.total_questions, l.completed_questions, l.score, l.last_score,
	l.total_attempts, l.average_score, l.last_accessed, l.created_at`

func collectLessons(rows *sql.Rows) ([]*models.Lesson, error) {
	defer rows.Close()
	var lessons []*models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return lessons, nil
}

func (s *PostgresStore) DeleteLesson(ctx context.Context, lessonID id.LessonID) error {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`DELETE FROM lessons WHERE id = $1`, lessonID.String())
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lesson rows: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "lesson not found")
	}
	return nil
}

// =============================================================================
// Questions
// =============================================================================

func (s *PostgresStore) CreateQuestions(ctx context.Context, questions []*models.Question) error {
	q := txcontext.Q(ctx, s.db)
	for _, question := range questions {
		_, err := q.ExecContext(ctx, `
			INSERT INTO questions (id, document_id, lesson_id, question_text, question_type, difficulty, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			question.ID.String(), question.DocumentID.String(), nullableID(question.LessonID.String()),
			question.Text, string(question.Type), string(question.Difficulty), question.Position,
		)
		if err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		for _, option := range question.Options {
			_, err := q.ExecContext(ctx, `
				INSERT INTO answer_options (id, question_id, answer_text, is_correct)
				VALUES ($1, $2, $3, $4)`,
				option.ID.String(), question.ID.String(), option.Text, option.IsCorrect,
			)
			if err != nil {
				return fmt.Errorf("create answer option: %w", err)
			}
		}
	}
	return nil
}

// BindQuestions attaches a document's questions to a lesson and returns how
// many were bound.
func (s *PostgresStore) BindQuestions(ctx context.Context, documentID id.DocumentID, lessonID id.LessonID) (int, error) {
	res, err := txcontext.Q(ctx, s.db).ExecContext(ctx,
		`UPDATE questions SET lesson_id = $2 WHERE document_id = $1`,
		documentID.String(), lessonID.String())
	if err != nil {
		return 0, fmt.Errorf("bind questions: %w", err)
	}
	bound, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bind questions rows: %w", err)
	}
	return int(bound), nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, questionID id.QuestionID) (*models.Question, error) {
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, document_id, lesson_id, question_text, question_type, difficulty, position
		FROM questions WHERE id = $1`,
		questionID.String())
	question, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "question not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if err := s.loadOptions(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

func scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	var question models.Question
	var rawID, rawDoc string
	var lessonID sql.NullString
	err := row.Scan(&rawID, &rawDoc, &lessonID, &question.Text, &question.Type,
		&question.Difficulty, &question.Position)
	if err != nil {
		return nil, err
	}
	question.ID = id.QuestionID(rawID)
	question.DocumentID = id.DocumentID(rawDoc)
	if lessonID.Valid {
		question.LessonID = id.LessonID(lessonID.String)
	}
	return &question, nil
}

func (s *PostgresStore) loadOptions(ctx context.Context, question *models.Question) error {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `
		SELECT id, question_id, answer_text, is_correct
		FROM answer_options WHERE question_id = $1 ORDER BY id`,
		question.ID.String())
	if err != nil {
		return fmt.Errorf("load answer options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var option models.AnswerOption
		var rawID, rawQ string
		if err := rows.Scan(&rawID, &rawQ, &option.Text, &option.IsCorrect); err != nil {
			return fmt.Errorf("scan answer option: %w", err)
		}
		option.ID = id.AnswerID(rawID)
		option.QuestionID = id.QuestionID(rawQ)
		question.Options = append(question.Options, option)
	}
	return rows.Err()
}

func (s *PostgresStore) ListQuestions(ctx context.Context, lessonID id.LessonID) ([]*models.Question, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `
		SELECT id, document_id, lesson_id, question_text, question_type, difficulty, position
		FROM questions WHERE lesson_id = $1 ORDER BY position`,
		lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var questions []*models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	for _, question := range questions {
		if err := s.loadOptions(ctx, question); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// =============================================================================
// Answers
// =============================================================================

func identityColumns(identity id.Identity) (userArg, guestArg any) {
	if userID, ok := identity.User(); ok {
		return userID.String(), nil
	}
	if guestID, ok := identity.Guest(); ok {
		return nil, guestID.String()
	}
	return nil, nil
}

// ReplaceAnswer deletes any previous answer of the identity to the question
// within the lesson and inserts the new one.
func (s *PostgresStore) ReplaceAnswer(ctx context.Context, a *models.UserAnswer) error {
	q := txcontext.Q(ctx, s.db)
	userArg, guestArg := identityColumns(a.Identity)

	_, err := q.ExecContext(ctx, `
		DELETE FROM user_answers
		WHERE lesson_id = $1 AND question_id = $2
		  AND user_id IS NOT DISTINCT FROM $3::uuid
		  AND guest_id IS NOT DISTINCT FROM $4::uuid`,
		a.LessonID.String(), a.QuestionID.String(), userArg, guestArg,
	)
	if err != nil {
		return fmt.Errorf("delete previous answer: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO user_answers (id, user_id, guest_id, question_id, lesson_id, selected_answer_id, open_answer, is_correct, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id.NewAnswerID().String(), userArg, guestArg, a.QuestionID.String(), a.LessonID.String(),
		nullableID(a.SelectedAnswerID.String()), a.OpenAnswer, a.IsCorrect, requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// CountAnswers returns the number of distinct answered questions and how
// many of them are correct, for one identity within one lesson.
func (s *PostgresStore) CountAnswers(ctx context.Context, lessonID id.LessonID, identity id.Identity) (answered int, correct int, err error) {
	userArg, guestArg := identityColumns(identity)
	row := txcontext.Q(ctx, s.db).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT question_id),
		       COUNT(DISTINCT question_id) FILTER (WHERE is_correct)
		FROM user_answers
		WHERE lesson_id = $1
		  AND user_id IS NOT DISTINCT FROM $2::uuid
		  AND guest_id IS NOT DISTINCT FROM $3::uuid`,
		lessonID.String(), userArg, guestArg,
	)
	if err := row.Scan(&answered, &correct); err != nil {
		return 0, 0, fmt.Errorf("count answers: %w", err)
	}
	return answered, correct, nil
}

func (s *PostgresStore) DeleteAnswers(ctx context.Context, lessonID id.LessonID, identity id.Identity) error {
	userArg, guestArg := identityColumns(identity)
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		DELETE FROM user_answers
		WHERE lesson_id = $1
		  AND user_id IS NOT DISTINCT FROM $2::uuid
		  AND guest_id IS NOT DISTINCT FROM $3::uuid`,
		lessonID.String(), userArg, guestArg,
	)
	if err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	return nil
}

// =============================================================================
// Attempts
// =============================================================================

func (s *PostgresStore) AppendAttempt(ctx context.Context, attempt *models.LessonAttempt) error {
	_, err := txcontext.Q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO lesson_attempts (lesson_id, attempt_number, score, completed_at)
		VALUES ($1, $2, $3, $4)`,
		attempt.LessonID.String(), attempt.AttemptNumber, attempt.Score, requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("append lesson attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, lessonID id.LessonID) ([]*models.LessonAttempt, error) {
	rows, err := txcontext.Q(ctx, s.db).QueryContext(ctx, `
		SELECT lesson_id, attempt_number, score, completed_at
		FROM lesson_attempts WHERE lesson_id = $1 ORDER BY attempt_number`,
		lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("list lesson attempts: %w", err)
	}
	defer rows.Close()
	var attempts []*models.LessonAttempt
	for rows.Next() {
		var attempt models.LessonAttempt
		var rawLesson string
		if err := rows.Scan(&rawLesson, &attempt.AttemptNumber, &attempt.Score, &attempt.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan lesson attempt: %w", err)
		}
		attempt.LessonID = id.LessonID(rawLesson)
		attempts = append(attempts, &attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson attempts: %w", err)
	}
	return attempts, nil
}
