// Command saturdayctl signs in to a Saturday server and edits the caller's availability
// calendar from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/saturday/internal/calendar"
	"github.com/example/saturday/internal/client"
)

const defaultServer = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is shared by every subcommand.
type app struct {
	server      string
	sessionPath string
	timeout     time.Duration

	jar    *fileJar
	client *client.Client
}

func (a *app) connect() error {
	if a.client != nil {
		return nil
	}
	jar, err := openFileJar(a.sessionPath, nil)
	if err != nil {
		return err
	}
	c, err := client.New(a.server, client.WithHTTPClient(&http.Client{Jar: jar, Timeout: a.timeout}))
	if err != nil {
		return err
	}
	a.jar, a.client = jar, c
	return nil
}

// finish surfaces session file errors that the jar could not return itself.
func (a *app) finish(err error) error {
	if client.IsUnauthenticated(err) {
		return errNotSignedIn
	}
	if err != nil {
		return err
	}
	if a.jar != nil {
		return a.jar.Err()
	}
	return nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "saturday", "session.json")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "saturdayctl",
		Short: "Manage your Saturday availability",
		Long: `Sign in to a Saturday server and edit your availability calendar.

Examples:
  SATURDAY_PASSWORD=... saturdayctl login sam
  saturdayctl calendar                  # upcoming Saturdays and their state
  saturdayctl toggle 2025-03-08         # unset -> available -> planned -> unset
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect()
		},
	}

	cmd.PersistentFlags().StringVar(&a.server, "server", envOr("SATURDAY_URL", defaultServer), "Saturday API base URL")
	cmd.PersistentFlags().StringVar(&a.sessionPath, "session", envOr("SATURDAY_SESSION", defaultSessionPath()), "File holding the auth cookie")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Per-request timeout")

	cmd.AddCommand(
		registerCmd(a),
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		joinCmd(a),
		schoolsCmd(a),
		calendarCmd(a),
		toggleCmd(a),
	)
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var req client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("SATURDAY_PASSWORD")
			}
			session, err := a.client.Register(cmd.Context(), req)
			if err != nil {
				return a.finish(err)
			}
			printSession(cmd.OutOrStdout(), session)
			return a.finish(nil)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (defaults to SATURDAY_PASSWORD)")
	cmd.Flags().StringVar(&req.DisplayName, "display-name", "", "Display name")
	cmd.Flags().StringVar(&req.AccountType, "type", "", "Account type: student or organization")
	cmd.Flags().StringVar(&req.School, "school", "", "School slug")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email-or-username>",
		Short: "Sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SATURDAY_PASSWORD")
			}
			session, err := a.client.Login(cmd.Context(), args[0], password)
			if err != nil {
				return a.finish(err)
			}
			printSession(cmd.OutOrStdout(), session)
			return a.finish(nil)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to SATURDAY_PASSWORD)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the auth cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return a.finish(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return a.finish(nil)
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, ok, err := a.client.Me(cmd.Context())
			if err != nil {
				return a.finish(err)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return a.finish(nil)
			}
			printSession(cmd.OutOrStdout(), session)
			return a.finish(nil)
		},
	}
}

func joinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join <school-slug>",
		Short: "Join a school",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.client.JoinSchool(cmd.Context(), args[0])
			if err != nil {
				return a.finish(err)
			}
			printSession(cmd.OutOrStdout(), session)
			return a.finish(nil)
		},
	}
}

func schoolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schools",
		Short: "List schools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schools, err := a.client.ListSchools(cmd.Context())
			if err != nil {
				return a.finish(err)
			}
			for _, school := range schools {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", school.Slug, school.Name)
			}
			return nil
		},
	}
}

func calendarCmd(a *app) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show upcoming Saturdays with your availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			planner := client.NewPlanner(a.client)
			today := calendar.DateOf(time.Now())
			if err := planner.Load(cmd.Context(), today, today.AddMonths(months)); err != nil {
				return a.finish(err)
			}
			for _, cell := range planner.Calendar(months) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", cell.Date, cell.State)
			}
			return a.finish(nil)
		},
	}
	cmd.Flags().IntVar(&months, "months", calendar.DefaultWindowMonths, "How many months ahead to show")
	return cmd
}

func toggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <YYYY-MM-DD>...",
		Short: "Advance each date to its next state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dates := make([]calendar.Date, 0, len(args))
			for _, arg := range args {
				date, err := calendar.ParseDate(arg)
				if err != nil {
					return err
				}
				dates = append(dates, date)
			}

			out := cmd.OutOrStdout()
			planner := client.NewPlanner(a.client, client.WithNotifier(client.NotifierFunc(func(f client.Failure) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: could not save %s, kept %s: %v\n", f.Date, f.Attempted, f.Restored, f.Err)
			})))

			first, last := dates[0], dates[0]
			for _, d := range dates[1:] {
				if d.Before(first) {
					first = d
				}
				if d.After(last) {
					last = d
				}
			}
			if err := planner.Load(cmd.Context(), first, last); err != nil {
				return a.finish(err)
			}

			var failed int
			for _, date := range dates {
				previous := planner.State(date)
				pending, next := planner.Toggle(cmd.Context(), date)
				if err := pending.Wait(cmd.Context()); err != nil {
					failed++
					continue
				}
				fmt.Fprintf(out, "%s: %s -> %s\n", date, previous, next)
			}
			if failed > 0 {
				return a.finish(fmt.Errorf("%d of %d changes failed", failed, len(dates)))
			}
			return a.finish(nil)
		},
	}
}

func printSession(w io.Writer, session client.Session) {
	school := "no school"
	if session.School != nil {
		school = session.School.Name
	}
	fmt.Fprintf(w, "Signed in as %s (%s), %s\n", session.User.Username, session.User.DisplayName, school)
}

// errNotSignedIn is reported in place of the raw API error for 401 responses.
var errNotSignedIn = errors.New("not signed in; run saturdayctl login")
