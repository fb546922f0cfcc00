package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

// DefaultTickInterval is the countdown cadence.
const DefaultTickInterval = time.Second

// View fragments that select the admin screens.
const (
	AdminFragment      = "#admin"
	AdminPanelFragment = "#admin-panel"
)

// Prompts shared by every surface that asks before a destructive admin action.
var (
	StopQuizPrompt       = domain.Prompt{Title: "Stop Quiz?", Text: "Are you sure you want to stop the quiz?"}
	DeleteQuestionPrompt = domain.Prompt{Title: "Delete Question?", Text: "You won't be able to revert this!"}
)

// State is the lifecycle position of the client's team.
type State int

const (
	StateUnauthenticated State = iota
	StateWaiting
	StateActive
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateSubmitted:
		return "submitted"
	default:
		return "unauthenticated"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Role is the authority the client currently holds.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// View is a presentation hint; it never grants anything.
type View string

const (
	ViewHome        View = "home"
	ViewAdminLogin  View = "adminLogin"
	ViewAdmin       View = "admin"
	ViewQuiz        View = "quiz"
	ViewLeaderboard View = "leaderboard"
)

// Snapshot is everything a client needs to render its current screen.
type Snapshot struct {
	State       State                   `json:"state"`
	Role        Role                    `json:"role"`
	View        View                    `json:"view"`
	Team        *domain.Team            `json:"team,omitempty"`
	Questions   []domain.PublicQuestion `json:"questions"`
	Answers     domain.Answers          `json:"answers"`
	RemainingMS int64                   `json:"remainingMs"`
	Clock       domain.ClockState       `json:"clock"`
	Leaderboard *domain.Leaderboard     `json:"leaderboard,omitempty"`
	Bank        []domain.Question       `json:"bank,omitempty"`
}

// Deps wires an Orchestrator to its collaborators. Teams, Questions, Clock and
// Sessions are required; the rest fall back to permissive defaults.
type Deps struct {
	Teams     TeamRepository
	Questions QuestionRepository
	Clock     ClockRepository
	Sessions  SessionStore
	Identity  IdentityLookup
	Confirm   Confirmer
	Notify    Notifier
	Admin     *AdminService
	Shuffler  *Shuffler
	Log       *zap.Logger
	Now       func() time.Time
	// TickInterval drives the countdown; a negative value disables the ticker so
	// callers advance it with Tick.
	TickInterval time.Duration
}

type concern int

const (
	concernClock concern = iota
	concernQuestions
	concernTeams
)

type subscription struct {
	id     uint64
	cancel func()
}

// Orchestrator reconciles the session store, team and question repositories and the
// quiz clock into the state one client should see. It owns the countdown and the
// forced submission at expiry. Every reaction runs under one lock.
type Orchestrator struct {
	key       string
	teams     TeamRepository
	questions QuestionRepository
	clockRepo ClockRepository
	sessions  SessionStore
	identity  IdentityLookup
	confirm   Confirmer
	notify    Notifier
	admin     *AdminService
	shuffler  *Shuffler
	log       *zap.Logger
	now       func() time.Time
	tickEvery time.Duration
	updates   *feed.Feed[Snapshot]

	mu          sync.Mutex
	team        *domain.Team
	answers     domain.Answers
	submitted   bool
	ordered     []domain.Question
	bank        []domain.Question
	bankPushed  bool
	clock       domain.ClockState
	remaining   time.Duration
	role        Role
	view        View
	leaderboard *domain.Leaderboard

	baseCtx       context.Context
	baseCancel    context.CancelFunc
	subs          map[concern]subscription
	nextSubID     uint64
	stopCountdown context.CancelFunc
	closed        bool
}

// NewOrchestrator builds an orchestrator for the client identified by key.
func NewOrchestrator(key string, deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Identity == nil {
		deps.Identity = StaticIdentity("")
	}
	if deps.Confirm == nil {
		deps.Confirm = AlwaysConfirm{}
	}
	if deps.Notify == nil {
		deps.Notify = DiscardNotices{}
	}
	if deps.Shuffler == nil {
		deps.Shuffler = NewShuffler(nil)
	}
	if deps.Admin == nil {
		deps.Admin = NewAdminServiceWithClock(deps.Questions, deps.Teams, deps.Clock, "", deps.Now)
	}
	if deps.TickInterval == 0 {
		deps.TickInterval = DefaultTickInterval
	}

	return &Orchestrator{
		key:       key,
		teams:     deps.Teams,
		questions: deps.Questions,
		clockRepo: deps.Clock,
		sessions:  deps.Sessions,
		identity:  deps.Identity,
		confirm:   deps.Confirm,
		notify:    deps.Notify,
		admin:     deps.Admin,
		shuffler:  deps.Shuffler,
		log:       deps.Log.With(zap.String("client", key)),
		now:       deps.Now,
		tickEvery: deps.TickInterval,
		updates:   feed.New[Snapshot](),
		answers:   domain.Answers{},
		role:      RoleParticipant,
		view:      ViewHome,
		subs:      make(map[concern]subscription),
	}
}

// Start subscribes to the clock and the question bank, then restores any saved
// session. Subscriptions live until Close.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.baseCtx != nil {
		o.mu.Unlock()
		return nil
	}
	o.baseCtx, o.baseCancel = context.WithCancel(ctx)
	o.mu.Unlock()

	if err := watch(o, concernClock, o.clockRepo.Subscribe, o.handleClock); err != nil {
		return fmt.Errorf("subscribe quiz clock: %w", err)
	}
	if err := watch(o, concernQuestions, o.questions.Subscribe, o.handleQuestions); err != nil {
		return fmt.Errorf("subscribe questions: %w", err)
	}
	_, err := o.Boot(ctx)
	return err
}

// Boot restores the team from the session store, reconciling it against the team
// repository. A session pointing at a missing team is cleared.
func (o *Orchestrator) Boot(ctx context.Context) (State, error) {
	saved, ok, err := o.sessions.Load(ctx, o.key, o.now())
	if err != nil {
		o.log.Warn("load session", zap.Error(err))
		ok = false
	}
	if !ok {
		return o.currentState(), nil
	}

	stored, err := o.teams.Get(ctx, saved.ID)
	if err != nil {
		o.clearSession(ctx)
		if errors.Is(err, domain.ErrTeamNotFound) {
			o.log.Info("session points at a missing team", zap.String("team", saved.ID))
			return o.currentState(), nil
		}
		return o.currentState(), fmt.Errorf("restore session: %w", err)
	}

	bank, err := o.questions.List(ctx)
	if err != nil {
		o.clearSession(ctx)
		return o.currentState(), fmt.Errorf("restore session: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.adoptLocked(ctx, stored, bank)
	if o.view != ViewAdminLogin && o.view != ViewAdmin {
		o.view = ViewQuiz
	}
	o.publishLocked()
	return o.stateLocked(), nil
}

// Register validates the form, freezes a random question order for the new team and
// logs it in. A known address already used by another team needs confirmation.
func (o *Orchestrator) Register(ctx context.Context, reg domain.Registration) (domain.Team, error) {
	if err := reg.Validate(); err != nil {
		return domain.Team{}, err
	}

	addr := o.identity.LookupAddress(ctx)
	existing, err := o.teams.List(ctx)
	if err != nil {
		return domain.Team{}, fmt.Errorf("register team: %w", err)
	}
	if dup, ok := findByAddress(existing, addr); ok {
		o.log.Info("address already registered", zap.String("address", addr), zap.String("team", dup.TeamName))
		prompt := domain.Prompt{
			Title: "IP Already Registered",
			Text:  fmt.Sprintf("A team (%s) has already registered from this IP address. Do you still want to continue?", dup.TeamName),
		}
		if !o.confirm.Confirm(ctx, prompt) {
			return domain.Team{}, domain.ErrCancelled
		}
	}

	bank, err := o.questions.List(ctx)
	if err != nil {
		return domain.Team{}, fmt.Errorf("register team: %w", err)
	}

	now := o.now()
	created, err := o.teams.Create(ctx, domain.Team{
		Email:         reg.Email,
		Password:      reg.Password,
		TeamName:      reg.TeamName,
		Members:       reg.ValidMembers(),
		IPAddress:     addr,
		RegisteredAt:  now,
		LastLogin:     now,
		Answers:       domain.Answers{},
		QuestionOrder: QuestionIDs(o.shuffler.Shuffle(bank)),
	})
	if err != nil {
		return domain.Team{}, fmt.Errorf("register team: %w", err)
	}
	o.saveSession(ctx, created, now)

	o.mu.Lock()
	o.adoptLocked(ctx, created, bank)
	o.view = ViewQuiz
	o.publishLocked()
	o.mu.Unlock()

	o.log.Info("team registered", zap.String("team", created.ID), zap.Int("questions", len(created.QuestionOrder)))
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Registration Successful!", Text: fmt.Sprintf("Welcome, %s!", created.TeamName)})
	return created.WithoutPassword(), nil
}

// Login matches the email against a fresh team snapshot and restores the team's
// frozen order, answers and submission flag.
func (o *Orchestrator) Login(ctx context.Context, creds domain.Credentials) (domain.Team, error) {
	if err := creds.Validate(); err != nil {
		return domain.Team{}, err
	}

	teams, err := o.teams.List(ctx)
	if err != nil {
		return domain.Team{}, fmt.Errorf("login: %w", err)
	}
	team, ok := findByEmail(teams, creds.Email)
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if team.Password != creds.Password {
		return domain.Team{}, domain.ErrWrongPassword
	}

	now := o.now()
	if err := o.teams.TouchLogin(ctx, team.ID, now); err != nil {
		return domain.Team{}, fmt.Errorf("login: %w", err)
	}
	team.LastLogin = now

	bank, err := o.questions.List(ctx)
	if err != nil {
		return domain.Team{}, fmt.Errorf("login: %w", err)
	}
	o.saveSession(ctx, team, now)

	o.mu.Lock()
	o.adoptLocked(ctx, team, bank)
	o.view = ViewQuiz
	o.publishLocked()
	o.mu.Unlock()

	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Login Successful!", Text: fmt.Sprintf("Welcome back, %s!", team.TeamName)})
	return team.WithoutPassword(), nil
}

// Logout clears the session and all team state and releases team-scoped subscriptions.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.clearSession(ctx)

	o.mu.Lock()
	o.team = nil
	o.answers = domain.Answers{}
	o.submitted = false
	o.ordered = nil
	if o.role != RoleAdmin {
		o.releaseLocked(concernTeams)
		o.leaderboard = nil
		o.view = ViewHome
	}
	o.publishLocked()
	o.mu.Unlock()

	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Logged Out", Text: "You have been logged out successfully"})
}

// SetAnswer records a selection while the quiz is running. The draft is persisted so
// a reload restores it.
func (o *Orchestrator) SetAnswer(ctx context.Context, questionID string, option int) error {
	o.mu.Lock()
	o.evaluateLocked(ctx)
	if err := o.canAnswerLocked(); err != nil {
		o.publishLocked()
		o.mu.Unlock()
		return err
	}
	q, ok := findQuestion(o.ordered, questionID)
	if !ok {
		o.mu.Unlock()
		return domain.ErrQuestionNotFound
	}
	if option < 0 || option >= len(q.Options) {
		o.mu.Unlock()
		return domain.ErrOptionNotFound
	}
	o.answers[questionID] = option
	teamID := o.team.ID
	draft := o.answers.Clone()
	o.publishLocked()
	o.mu.Unlock()

	if err := o.teams.SaveAnswers(ctx, teamID, draft); err != nil {
		o.log.Warn("save draft answers", zap.String("team", teamID), zap.Error(err))
	}
	return nil
}

// Submit is the user-confirmed submission. If the countdown submitted first while
// the prompt was open, the stored result is returned without another write.
func (o *Orchestrator) Submit(ctx context.Context) (domain.Team, error) {
	o.mu.Lock()
	o.evaluateLocked(ctx)
	if err := o.canAnswerLocked(); err != nil {
		o.publishLocked()
		o.mu.Unlock()
		return domain.Team{}, err
	}
	teamID := o.team.ID
	o.mu.Unlock()

	prompt := domain.Prompt{
		Title: "Submit Quiz?",
		Text:  "Are you sure you want to submit? You cannot change answers after submission.",
	}
	if !o.confirm.Confirm(ctx, prompt) {
		return domain.Team{}, domain.ErrCancelled
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.team == nil || o.team.ID != teamID {
		return domain.Team{}, domain.ErrNotAuthenticated
	}
	// the end time may have passed while the prompt was open
	o.evaluateLocked(ctx)
	if o.submitted {
		o.publishLocked()
		return o.team.WithoutPassword(), nil
	}
	team, err := o.commitSubmissionLocked(ctx)
	o.publishLocked()
	if err != nil {
		return domain.Team{}, err
	}
	return team.WithoutPassword(), nil
}

// Tick recomputes the remaining time from the authoritative end time and forces the
// submission once it reaches zero.
func (o *Orchestrator) Tick(ctx context.Context) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluateLocked(ctx)
	o.publishLocked()
	return o.remaining
}

// Remaining is the live countdown value.
func (o *Orchestrator) Remaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clock.Remaining(o.now())
}

// AdminLogin grants the admin role when the passphrase matches.
func (o *Orchestrator) AdminLogin(ctx context.Context, passphrase string) error {
	if err := o.admin.Authorize(passphrase); err != nil {
		o.notify.Notify(domain.Notice{Level: domain.NoticeError, Title: "Access Denied", Text: "Incorrect password!"})
		return err
	}
	o.mu.Lock()
	o.role = RoleAdmin
	o.view = ViewAdmin
	o.publishLocked()
	o.mu.Unlock()

	if err := watch(o, concernTeams, o.teams.Subscribe, o.handleTeams); err != nil {
		o.log.Warn("subscribe teams for admin", zap.Error(err))
	}
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Welcome Admin!", Text: "Successfully logged in"})
	return nil
}

// AdminLogout drops the admin role.
func (o *Orchestrator) AdminLogout() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revokeAdminLocked()
	o.publishLocked()
}

// StartQuiz starts the global clock for the given minutes.
func (o *Orchestrator) StartQuiz(ctx context.Context, minutes int) error {
	if err := o.requireAdmin(); err != nil {
		return err
	}
	if _, err := o.admin.Start(ctx, minutes); err != nil {
		o.notifyError("Error starting quiz", err)
		return err
	}
	o.log.Info("quiz started", zap.Int("minutes", minutes))
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Quiz Started!", Text: fmt.Sprintf("Quiz will run for %d minutes", minutes)})
	return nil
}

// StopQuiz stops the global clock after confirmation.
func (o *Orchestrator) StopQuiz(ctx context.Context) error {
	if err := o.requireAdmin(); err != nil {
		return err
	}
	if !o.confirm.Confirm(ctx, StopQuizPrompt) {
		return domain.ErrCancelled
	}
	if err := o.admin.Stop(ctx); err != nil {
		o.notifyError("Error stopping quiz", err)
		return err
	}
	o.log.Info("quiz stopped")
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Quiz Stopped!", Text: "The quiz has been stopped"})
	return nil
}

// AddQuestion adds a question to the bank.
func (o *Orchestrator) AddQuestion(ctx context.Context, draft domain.QuestionDraft) (domain.Question, error) {
	if err := o.requireAdmin(); err != nil {
		return domain.Question{}, err
	}
	q, err := o.admin.AddQuestion(ctx, draft)
	if err != nil {
		if domain.KindOf(err) == domain.KindBackend {
			o.notifyError("Error adding question", err)
		}
		return domain.Question{}, err
	}
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Question Added!", Text: "Question added successfully"})
	return q, nil
}

// DeleteQuestion removes a question after confirmation.
func (o *Orchestrator) DeleteQuestion(ctx context.Context, id string) error {
	if err := o.requireAdmin(); err != nil {
		return err
	}
	if !o.confirm.Confirm(ctx, DeleteQuestionPrompt) {
		return domain.ErrCancelled
	}
	if err := o.admin.DeleteQuestion(ctx, id); err != nil {
		o.notifyError("Error deleting question", err)
		return err
	}
	o.notify.Notify(domain.Notice{Level: domain.NoticeSuccess, Title: "Deleted!", Text: "Question deleted successfully"})
	return nil
}

// Navigate applies a view fragment. The fragment only selects screens; leaving the
// admin fragments revokes the admin role.
func (o *Orchestrator) Navigate(fragment string) View {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case fragment == AdminFragment && o.role != RoleAdmin:
		o.view = ViewAdminLogin
	case fragment != AdminFragment && fragment != AdminPanelFragment && o.role == RoleAdmin:
		o.revokeAdminLocked()
	case fragment != AdminFragment && o.view == ViewAdminLogin:
		o.view = o.homeViewLocked()
	}
	o.publishLocked()
	return o.view
}

// WatchLeaderboard subscribes to the team list and shows the standings.
func (o *Orchestrator) WatchLeaderboard(ctx context.Context) error {
	if err := watch(o, concernTeams, o.teams.Subscribe, o.handleTeams); err != nil {
		return fmt.Errorf("subscribe teams: %w", err)
	}
	o.mu.Lock()
	o.view = ViewLeaderboard
	o.publishLocked()
	o.mu.Unlock()
	return nil
}

// UnwatchLeaderboard releases the team subscription unless the admin view needs it.
func (o *Orchestrator) UnwatchLeaderboard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.role != RoleAdmin {
		o.releaseLocked(concernTeams)
		o.leaderboard = nil
	}
	o.view = o.homeViewLocked()
	o.publishLocked()
}

// Snapshot returns the current view model.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Updates streams a snapshot after every reaction. The caller must cancel.
func (o *Orchestrator) Updates() (<-chan Snapshot, func()) {
	return o.updates.Subscribe()
}

// Close releases every subscription and stops the countdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for c := range o.subs {
		o.releaseLocked(c)
	}
	o.stopCountdownLocked()
	if o.baseCancel != nil {
		o.baseCancel()
	}
	o.mu.Unlock()
	o.updates.Close()
}

func (o *Orchestrator) handleClock(ctx context.Context, id uint64, state domain.ClockState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(concernClock, id) {
		return
	}
	o.clock = state
	if state.Active {
		o.startCountdownLocked()
	} else {
		o.stopCountdownLocked()
	}
	o.evaluateLocked(ctx)
	o.publishLocked()
}

func (o *Orchestrator) handleQuestions(_ context.Context, id uint64, qs []domain.Question) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(concernQuestions, id) {
		return
	}
	o.bank = qs
	o.bankPushed = true
	if o.team != nil {
		o.ordered = ProjectOrder(o.team.QuestionOrder, qs)
	}
	if o.leaderboard != nil {
		o.leaderboard.Total = len(qs)
	}
	o.publishLocked()
}

func (o *Orchestrator) handleTeams(_ context.Context, id uint64, teams []domain.Team) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(concernTeams, id) {
		return
	}
	lb := BuildLeaderboard(teams, len(o.bank), o.now())
	o.leaderboard = &lb

	// another client of the same team may have submitted
	if o.team != nil && !o.submitted {
		for _, t := range teams {
			if t.ID == o.team.ID && t.Submitted {
				stored := t
				o.team = &stored
				o.answers = t.Answers.Clone()
				o.submitted = true
				break
			}
		}
	}
	o.publishLocked()
}

// adoptLocked installs team as the current team. bank seeds the projection only until
// the question subscription has delivered; after that the pushed bank is current.
func (o *Orchestrator) adoptLocked(ctx context.Context, team domain.Team, bank []domain.Question) {
	t := team
	o.team = &t
	o.answers = team.Answers.Clone()
	o.submitted = team.Submitted
	if bank != nil && !o.bankPushed {
		o.bank = bank
	}
	o.ordered = ProjectOrder(team.QuestionOrder, o.bank)
	o.evaluateLocked(ctx)
}

func (o *Orchestrator) evaluateLocked(ctx context.Context) {
	o.remaining = o.clock.Remaining(o.now())
	if !o.clock.Active || o.remaining > 0 || o.team == nil || o.submitted {
		return
	}
	if _, err := o.commitSubmissionLocked(ctx); err != nil {
		o.log.Error("auto-submit", zap.String("team", o.team.ID), zap.Error(err))
		o.notifyError("Submission Error", err)
		return
	}
	o.log.Info("auto-submitted at expiry", zap.String("team", o.team.ID), zap.Int("score", o.team.Score))
}

// commitSubmissionLocked scores the team's own order and writes the result once.
func (o *Orchestrator) commitSubmissionLocked(ctx context.Context) (domain.Team, error) {
	team := *o.team
	sub := domain.Submission{
		Answers:     o.answers.Clone(),
		Score:       Score(o.ordered, o.answers),
		SubmittedAt: o.now(),
	}
	if err := o.teams.Submit(ctx, team.ID, sub); err != nil {
		return domain.Team{}, fmt.Errorf("submit quiz: %w", err)
	}

	stored, err := o.teams.Get(ctx, team.ID)
	if err != nil {
		o.log.Warn("reload submitted team", zap.String("team", team.ID), zap.Error(err))
		stored = team
		stored.Answers = sub.Answers
		stored.Score = sub.Score
		stored.Submitted = true
		stored.SubmittedAt = sub.SubmittedAt
	}
	o.team = &stored
	o.answers = stored.Answers.Clone()
	o.submitted = true

	total := len(o.ordered)
	percent := 0
	if total > 0 {
		percent = (stored.Score*100 + total/2) / total
	}
	o.notify.Notify(domain.Notice{
		Level: domain.NoticeSuccess,
		Title: "Quiz Submitted!",
		Text:  fmt.Sprintf("Your score: %d/%d (%d%%)", stored.Score, total, percent),
	})
	return stored, nil
}

func (o *Orchestrator) canAnswerLocked() error {
	switch {
	case o.team == nil:
		return domain.ErrNotAuthenticated
	case o.submitted:
		return domain.ErrAlreadySubmitted
	case !o.clock.Active, o.remaining <= 0:
		return domain.ErrQuizInactive
	}
	return nil
}

func (o *Orchestrator) requireAdmin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.role != RoleAdmin {
		return domain.ErrNotAdmin
	}
	return nil
}

func (o *Orchestrator) revokeAdminLocked() {
	if o.role != RoleAdmin {
		return
	}
	o.role = RoleParticipant
	if o.view != ViewLeaderboard {
		o.releaseLocked(concernTeams)
		o.leaderboard = nil
	}
	o.view = o.homeViewLocked()
}

func (o *Orchestrator) homeViewLocked() View {
	if o.team != nil {
		return ViewQuiz
	}
	return ViewHome
}

func (o *Orchestrator) stateLocked() State {
	switch {
	case o.team == nil:
		return StateUnauthenticated
	case o.submitted:
		return StateSubmitted
	case o.clock.Active:
		return StateActive
	default:
		return StateWaiting
	}
}

func (o *Orchestrator) currentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishLocked()
	return o.stateLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       o.stateLocked(),
		Role:        o.role,
		View:        o.view,
		Questions:   make([]domain.PublicQuestion, 0, len(o.ordered)),
		Answers:     o.answers.Clone(),
		RemainingMS: o.remaining.Milliseconds(),
		Clock:       o.clock,
	}
	if o.team != nil {
		t := o.team.WithoutPassword()
		s.Team = &t
	}
	for _, q := range o.ordered {
		s.Questions = append(s.Questions, q.Public())
	}
	if o.leaderboard != nil {
		lb := *o.leaderboard
		s.Leaderboard = &lb
	}
	if o.role == RoleAdmin {
		s.Bank = append([]domain.Question(nil), o.bank...)
	}
	return s
}

func (o *Orchestrator) publishLocked() {
	o.updates.Publish(o.snapshotLocked())
}

func (o *Orchestrator) startCountdownLocked() {
	if o.stopCountdown != nil || o.tickEvery < 0 || o.baseCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.stopCountdown = cancel
	go o.runCountdown(ctx)
}

func (o *Orchestrator) stopCountdownLocked() {
	if o.stopCountdown != nil {
		o.stopCountdown()
		o.stopCountdown = nil
	}
}

func (o *Orchestrator) runCountdown(ctx context.Context) {
	ticker := time.NewTicker(o.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

func (o *Orchestrator) currentLocked(c concern, id uint64) bool {
	sub, ok := o.subs[c]
	return ok && sub.id == id
}

func (o *Orchestrator) releaseLocked(c concern) {
	if sub, ok := o.subs[c]; ok {
		sub.cancel()
		delete(o.subs, c)
	}
}

func (o *Orchestrator) baseContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.baseCtx == nil {
		o.baseCtx, o.baseCancel = context.WithCancel(context.Background())
	}
	return o.baseCtx
}

// watch replaces the subscription for a concern and pumps its values into handle.
// Values from a replaced subscription are ignored.
func watch[T any](o *Orchestrator, c concern, subscribe func(context.Context) (<-chan T, func(), error), handle func(context.Context, uint64, T)) error {
	ctx := o.baseContext()
	ch, cancel, err := subscribe(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil
	}
	o.releaseLocked(c)
	o.nextSubID++
	id := o.nextSubID
	o.subs[c] = subscription{id: id, cancel: cancel}
	o.mu.Unlock()

	go func() {
		for v := range ch {
			handle(ctx, id, v)
		}
	}()
	return nil
}

func (o *Orchestrator) saveSession(ctx context.Context, team domain.Team, now time.Time) {
	if err := o.sessions.Save(ctx, o.key, team, now); err != nil {
		o.log.Warn("save session", zap.String("team", team.ID), zap.Error(err))
	}
}

func (o *Orchestrator) clearSession(ctx context.Context) {
	if err := o.sessions.Clear(ctx, o.key); err != nil {
		o.log.Warn("clear session", zap.Error(err))
	}
}

func (o *Orchestrator) notifyError(title string, err error) {
	o.notify.Notify(domain.Notice{Level: domain.NoticeError, Title: title, Text: err.Error()})
}

func findByAddress(teams []domain.Team, addr string) (domain.Team, bool) {
	if addr == "" || addr == domain.UnknownAddress {
		return domain.Team{}, false
	}
	for _, t := range teams {
		if t.IPAddress == addr {
			return t, true
		}
	}
	return domain.Team{}, false
}

func findByEmail(teams []domain.Team, email string) (domain.Team, bool) {
	for _, t := range teams {
		if t.Email == email {
			return t, true
		}
	}
	return domain.Team{}, false
}

func findQuestion(qs []domain.Question, id string) (domain.Question, bool) {
	for _, q := range qs {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}
