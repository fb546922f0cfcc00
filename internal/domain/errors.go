package domain

import "errors"

var (
	// ErrIncompleteRegistration is returned when email, password or team name is missing.
	ErrIncompleteRegistration = errors.New("please fill email, password, and team name")
	// ErrPasswordMismatch is returned when the confirmation differs from the password.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrNoMembers is returned when every member name is blank.
	ErrNoMembers = errors.New("please add at least one team member")
	// ErrMissingCredentials is returned when login email or password is empty.
	ErrMissingCredentials = errors.New("please enter email and password")
	// ErrIncompleteQuestion is returned for a question form with blank fields or too few options.
	ErrIncompleteQuestion = errors.New("please fill the question and all options")
	// ErrInvalidCorrectAnswer is returned when the correct index is outside the options.
	ErrInvalidCorrectAnswer = errors.New("correct answer must point at one of the options")
	// ErrInvalidDuration is returned when a quiz is started without a positive duration.
	ErrInvalidDuration = errors.New("quiz duration must be positive")

	// ErrTeamNotFound indicates no team matches the email or stored session.
	ErrTeamNotFound = errors.New("team not found")
	// ErrQuestionNotFound indicates a question ID is not part of the bank or the team's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option index is out of range.
	ErrOptionNotFound = errors.New("option not found")

	// ErrWrongPassword is returned when the team password does not match.
	ErrWrongPassword = errors.New("incorrect password")
	// ErrWrongPassphrase is returned when the admin passphrase does not match.
	ErrWrongPassphrase = errors.New("incorrect admin passphrase")
	// ErrNotAdmin is returned for admin actions without the admin role.
	ErrNotAdmin = errors.New("admin access required")
	// ErrNotAuthenticated is returned for team actions before login.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrQuizInactive is returned when answering or submitting while the clock is stopped.
	ErrQuizInactive = errors.New("quiz is not active")
	// ErrAlreadySubmitted is returned for changes after the team submitted.
	ErrAlreadySubmitted = errors.New("quiz already submitted")

	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled")
)

// Kind groups errors for presentation.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindCancelled    Kind = "cancelled"
	KindBackend      Kind = "backend"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{
		ErrIncompleteRegistration, ErrPasswordMismatch, ErrWeakPassword, ErrNoMembers,
		ErrMissingCredentials, ErrIncompleteQuestion, ErrInvalidCorrectAnswer, ErrInvalidDuration,
		ErrOptionNotFound,
	}},
	{KindNotFound, []error{ErrTeamNotFound, ErrQuestionNotFound}},
	{KindUnauthorized, []error{ErrWrongPassword, ErrWrongPassphrase, ErrNotAdmin, ErrNotAuthenticated}},
	{KindConflict, []error{ErrQuizInactive, ErrAlreadySubmitted}},
	{KindCancelled, []error{ErrCancelled}},
}

// KindOf classifies err; anything unrecognised is a backend failure.
func KindOf(err error) Kind {
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindBackend
}
