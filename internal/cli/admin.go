package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/config"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/logger"
)

var errSharedStoreRequired = errors.New("admin commands need a shared store (postgres or mongo)")

type adminOptions struct {
	passphrase string
	yes        bool
}

// NewAdminCmd groups the administrator operations against the configured store.
func NewAdminCmd(configPath *string) *cobra.Command {
	opts := &adminOptions{}
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer the quiz clock and question bank",
	}
	cmd.PersistentFlags().StringVar(&opts.passphrase, "passphrase", "", "admin passphrase")
	cmd.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "skip confirmation prompts")

	var minutes int
	start := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz for a number of minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, _ app.Confirmer) error {
				state, err := svc.Start(ctx, minutes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Quiz started for %d minutes, ends at %s\n", minutes, state.EndTime.Format(time.RFC3339))
				return nil
			})
		},
	}
	start.Flags().IntVar(&minutes, "minutes", 30, "quiz length in minutes")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, confirm app.Confirmer) error {
				if !confirm.Confirm(ctx, app.StopQuizPrompt) {
					return domain.ErrCancelled
				}
				if err := svc.Stop(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Quiz stopped")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the quiz clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, _ app.Confirmer) error {
				state, err := svc.Clock(ctx)
				if err != nil {
					return err
				}
				printClock(cmd.OutOrStdout(), state, time.Now())
				return nil
			})
		},
	}

	var draft domain.QuestionDraft
	add := &cobra.Command{
		Use:   "add-question",
		Short: "Add a multiple choice question",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, _ app.Confirmer) error {
				q, err := svc.AddQuestion(ctx, draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Question added: %s\n", q.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&draft.Question, "question", "", "question text")
	add.Flags().StringArrayVar(&draft.Options, "option", nil, fmt.Sprintf("answer option, repeat at least %d times", domain.MinOptions))
	add.Flags().IntVar(&draft.CorrectAnswer, "correct", 0, "index of the correct option, from 0")

	del := &cobra.Command{
		Use:   "delete-question ID",
		Short: "Delete a question from the bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, confirm app.Confirmer) error {
				if !confirm.Confirm(ctx, app.DeleteQuestionPrompt) {
					return domain.ErrCancelled
				}
				if err := svc.DeleteQuestion(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Question deleted")
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "questions",
		Short: "List the question bank in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, _ app.Confirmer) error {
				qs, err := svc.Questions(ctx)
				if err != nil {
					return err
				}
				return printQuestions(cmd.OutOrStdout(), qs)
			})
		},
	}

	board := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show current standings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, *configPath, opts, func(ctx context.Context, svc *app.AdminService, _ app.Confirmer) error {
				lb, err := svc.Standings(ctx)
				if err != nil {
					return err
				}
				return printStandings(cmd.OutOrStdout(), lb)
			})
		},
	}

	cmd.AddCommand(start, stop, status, add, del, list, board)
	return cmd
}

func withAdmin(cmd *cobra.Command, configPath string, opts *adminOptions, run func(context.Context, *app.AdminService, app.Confirmer) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverMemory {
		return errSharedStoreRequired
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	svc := app.NewAdminService(b.questions, b.teams, b.clock, cfg.Quiz.AdminPassphrase)
	if err := svc.Authorize(opts.passphrase); err != nil {
		return err
	}
	log.Debug("admin command", zap.String("command", cmd.Name()))
	return run(ctx, svc, &terminalConfirmer{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr(), yes: opts.yes})
}

// terminalConfirmer asks on the terminal; anything but y/yes is a refusal.
type terminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func (c *terminalConfirmer) Confirm(_ context.Context, p domain.Prompt) bool {
	if c.yes {
		return true
	}
	fmt.Fprintf(c.out, "%s %s [y/N]: ", p.Title, p.Text)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printClock(w io.Writer, state domain.ClockState, now time.Time) {
	if !state.Active {
		fmt.Fprintln(w, "Quiz is not running")
		return
	}
	fmt.Fprintf(w, "Quiz running until %s (%s left)\n",
		state.EndTime.Format(time.RFC3339), state.Remaining(now).Truncate(time.Second))
}

func printQuestions(w io.Writer, qs []domain.Question) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tCORRECT\tQUESTION")
	for _, q := range qs {
		correct := ""
		if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
			correct = q.Options[q.CorrectAnswer]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", q.ID, q.CreatedAt.Format(time.RFC3339), correct, q.Question)
	}
	return tw.Flush()
}

func printStandings(w io.Writer, lb domain.Leaderboard) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM\tSCORE\tSUBMITTED\tMEMBERS")
	for i, e := range lb.Entries {
		submitted := "no"
		if e.Submitted {
			submitted = e.SubmittedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\t%s\n", i+1, e.TeamName, e.Score, lb.Total, submitted, strings.Join(e.Members, ", "))
	}
	return tw.Flush()
}
