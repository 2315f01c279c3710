package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/grifitth12/absen-siswa/internal/model"
)

var errNotSignedIn = errors.New("not signed in")

func loginCmd(e *env) *cobra.Command {
	var creds model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with NISN and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if creds.NISN == "" {
				if creds.NISN, err = prompt(cmd, in, "NISN: "); err != nil {
					return err
				}
			}
			if creds.Password == "" {
				if creds.Password, err = promptPassword(cmd, in, "Password: "); err != nil {
					return err
				}
			}

			a, err := e.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Session.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			snap := a.Session.Snapshot()
			name := result.Role
			if snap.User != nil {
				name = snap.User.DisplayName()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", name, result.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.NISN, "nisn", "", "student or staff NISN")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password (prompted when omitted)")
	return cmd
}

func whoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.Session.Snapshot()
			if !snap.IsAuthenticated || snap.User == nil {
				return errNotSignedIn
			}
			printUser(cmd.OutOrStdout(), *snap.User)
			return nil
		},
	}
}

func submitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <code>",
		Short: "Submit an attendance code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Session.SubmitAttendanceToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}

func logoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func statusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the restored session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.Session.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "service: %s\nstate:   %s\n", a.Gateway.BaseURL(), snap.State)
			if snap.User != nil {
				printUser(out, *snap.User)
			}
			return nil
		},
	}
}

func printUser(w io.Writer, u model.User) {
	fmt.Fprintf(w, "name:    %s\nrole:    %s\n", u.DisplayName(), u.Role)
	if u.NISN != "" {
		fmt.Fprintf(w, "nisn:    %s\n", u.NISN)
	}
	if u.ClassGroup != "" {
		fmt.Fprintf(w, "class:   %s\n", u.ClassGroup)
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(cmd, in, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	pw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}
