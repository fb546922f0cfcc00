package domain

import (
	"strings"
	"time"
)

// UnknownAddress is reported when the client's network address cannot be determined.
const UnknownAddress = "Unknown"

// MinOptions is the smallest number of options a question may carry.
const MinOptions = 4

// MinPasswordLength mirrors the registration form rule.
const MinPasswordLength = 6

// Answers maps a question ID to the selected option index.
type Answers map[string]int

// Clone returns an independent copy; a nil map clones to an empty one.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Team is a registered competing unit with its credentials and quiz progress.
type Team struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Password      string    `json:"password,omitempty"` // opaque, compared for equality only
	TeamName      string    `json:"teamName"`
	Members       []string  `json:"members"`
	IPAddress     string    `json:"ipAddress"`
	RegisteredAt  time.Time `json:"registeredAt"`
	LastLogin     time.Time `json:"lastLogin"`
	Answers       Answers   `json:"answers"`
	Score         int       `json:"score"`
	Submitted     bool      `json:"submitted"`
	SubmittedAt   time.Time `json:"submittedAt"`
	QuestionOrder []string  `json:"questionOrder"`
}

// WithoutPassword returns a copy that is safe to cache locally or send to clients.
func (t Team) WithoutPassword() Team {
	t.Password = ""
	return t
}

// Submission is the one-time transition written when a team finishes the quiz.
type Submission struct {
	Answers     Answers
	Score       int
	SubmittedAt time.Time
}

// Question is a multiple choice question in the bank.
type Question struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Question: q.Question, Options: q.Options}
}

// ClockState is the singleton document controlling when answering is permitted.
type ClockState struct {
	Active    bool          `json:"active"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Remaining is max(0, EndTime-now) for an active clock and zero otherwise.
func (c ClockState) Remaining(now time.Time) time.Duration {
	if !c.Active || c.EndTime.IsZero() {
		return 0
	}
	left := c.EndTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Registration carries the fields of the team sign-up form.
type Registration struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	TeamName        string   `json:"teamName"`
	Members         []string `json:"members"`
}

// Validate checks the form before anything is written.
func (r Registration) Validate() error {
	if r.Email == "" || r.Password == "" || r.TeamName == "" {
		return ErrIncompleteRegistration
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(r.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(r.ValidMembers()) == 0 {
		return ErrNoMembers
	}
	return nil
}

// ValidMembers drops blank member names.
func (r Registration) ValidMembers() []string {
	members := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if strings.TrimSpace(m) != "" {
			members = append(members, m)
		}
	}
	return members
}

// Credentials are what a returning team logs in with.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate requires both fields.
func (c Credentials) Validate() error {
	if c.Email == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// QuestionDraft is the admin form for a new question.
type QuestionDraft struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Validate requires the text, at least MinOptions filled options and an in-range answer.
func (d QuestionDraft) Validate() error {
	if strings.TrimSpace(d.Question) == "" || len(d.Options) < MinOptions {
		return ErrIncompleteQuestion
	}
	for _, opt := range d.Options {
		if strings.TrimSpace(opt) == "" {
			return ErrIncompleteQuestion
		}
	}
	if d.CorrectAnswer < 0 || d.CorrectAnswer >= len(d.Options) {
		return ErrInvalidCorrectAnswer
	}
	return nil
}

// LeaderboardEntry is a ranked view of one team.
type LeaderboardEntry struct {
	TeamID      string    `json:"teamId"`
	TeamName    string    `json:"teamName"`
	Members     []string  `json:"members"`
	IPAddress   string    `json:"ipAddress"`
	Score       int       `json:"score"`
	Submitted   bool      `json:"submitted"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Leaderboard is the ordered standings plus the size of the current bank.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	Total     int                `json:"total"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Prompt is a blocking yes/no question put to the user.
type Prompt struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// NoticeLevel classifies a notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a fire-and-forget message for the user.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Title string      `json:"title"`
	Text  string      `json:"text"`
}
