package domain

import "time"

// Question is a single multiple-choice question inside a pack.
// Immutable once the pack is stored.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	Topic         string   `json:"topic"`
	ChapterID     string   `json:"chapterId,omitempty"`
	ChapterTitle  string   `json:"chapterTitle,omitempty"`
}

// Pack is a named, user-uploaded collection of questions.
type Pack struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	UploadedAt  time.Time  `json:"uploadedAt"`
}

// WrongAnswer is one ledger record of an incorrectly answered question.
// Identity for deduplication is (QuestionID, PackID, Question text).
type WrongAnswer struct {
	ID            string    `json:"id"`
	QuestionID    int       `json:"questionId"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"`
	UserAnswer    int       `json:"userAnswer"`
	Explanation   string    `json:"explanation,omitempty"`
	Topic         string    `json:"topic"`
	PackID        string    `json:"packId"`
	PackName      string    `json:"packName"`
	Timestamp     time.Time `json:"timestamp"`
	AttemptCount  int       `json:"attemptCount"`
}

// TopicScore holds per-topic correct/total counters, accumulated within a
// session or merged across history.
type TopicScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Attempt is one completed quiz run. Append-only once recorded.
type Attempt struct {
	ID               string                `json:"id"`
	ChapterID        string                `json:"chapterId"`
	ChapterTitle     string                `json:"chapterTitle"`
	TotalQuestions   int                   `json:"totalQuestions"`
	CorrectAnswers   int                   `json:"correctAnswers"`
	WrongAnswers     int                   `json:"wrongAnswers"`
	MissedQuestions  int                   `json:"missedQuestions"`
	TimeSpent        int                   `json:"timeSpent"` // minutes
	Streak           int                   `json:"streak"`
	TopicPerformance map[string]TopicScore `json:"topicPerformance"`
	Timestamp        time.Time             `json:"timestamp"`
}

// Achievement is an unlocked badge. Deduplicated by ID.
type Achievement struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Desc       string    `json:"description,omitempty"`
	UnlockedAt time.Time `json:"unlockedAt"`
}
