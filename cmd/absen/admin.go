package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grifitth12/absen-siswa/internal/app"
	"github.com/grifitth12/absen-siswa/internal/staff"
)

var errStaffOnly = errors.New("sign in with a staff account first")

func adminCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Staff tools: attendance codes, dashboard and exports",
	}

	token := &cobra.Command{
		Use:   "token",
		Short: "Issue attendance codes",
	}
	token.AddCommand(tokenCreateCmd(e), tokenDefaultCmd(e))

	cmd.AddCommand(token, dashboardCmd(e), chartCmd(e), exportCmd(e), logsCmd(e))
	return cmd
}

// openStaff opens the application and checks the restored session is
// privileged.
func (e *env) openStaff(cmd *cobra.Command) (*app.App, error) {
	a, err := e.open(cmd, nil)
	if err != nil {
		return nil, err
	}
	snap := a.Session.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil || !a.Session.Privileged(snap.User.Role) {
		_ = a.Close()
		return nil, errStaffOnly
	}
	return a, nil
}

func tokenCreateCmd(e *env) *cobra.Command {
	var duration, lateAfter time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a code valid for a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.Staff.CreateToken(cmd.Context(), duration, lateAfter)
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "how long the code stays valid")
	cmd.Flags().DurationVar(&lateAfter, "late-after", 15*time.Minute, "redemptions after this are marked late")
	return cmd
}

func tokenDefaultCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Issue a code with the service defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.Staff.CreateDefaultToken(cmd.Context())
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func dashboardCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show attendance totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Staff.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Codes issued\t%d\n", stats.TotalTokens)
			fmt.Fprintf(tw, "Active codes\t%d\n", stats.ActiveTokens)
			fmt.Fprintf(tw, "Attendance today\t%d\n", stats.TodayAttendance)
			fmt.Fprintf(tw, "Attendance total\t%d\n", stats.TotalAttendance)
			return tw.Flush()
		},
	}
}

func chartCmd(e *env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show daily attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			points, err := a.Staff.AttendanceChart(cmd.Context(), days)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tPRESENT\tSTUDENTS")
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", p.Date, p.Attendance, p.Total)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", staff.DefaultChartDays, "number of days to show")
	return cmd
}

func exportCmd(e *env) *cobra.Command {
	var (
		f   staff.Filter
		out string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attendance to a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.Empty() {
				return staff.ErrFilterRequired
			}
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			table, err := a.Staff.ExportAttendance(cmd.Context(), f)
			if err != nil {
				return err
			}
			if table.Len() == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no attendance matches the filter")
			}

			if out == "" {
				out = staff.ExportFileName(f, time.Now())
			}
			if out == "-" {
				return staff.WriteCSV(cmd.OutOrStdout(), table)
			}
			if err := writeCSVFile(out, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", table.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Kelas, "kelas", "", "class, for example \"XII RPL 1\"")
	cmd.Flags().StringVar(&f.Jurusan, "jurusan", "", "major, for example RPL")
	cmd.Flags().StringVar(&f.Tanggal, "tanggal", "", "day as YYYY-MM-DD")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, - for stdout (default Attendance_<date>.csv)")
	return cmd
}

func logsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Show the activity history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.openStaff(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			table, err := a.Staff.History(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
}

func printToken(w io.Writer, tok staff.Token) {
	fmt.Fprintf(w, "code:        %s\nvalid until: %s\n", tok.TokenCode, tok.ValidUntil)
	if tok.LateAfter != "" {
		fmt.Fprintf(w, "late after:  %s\n", tok.LateAfter)
	}
}

func printTable(w io.Writer, t staff.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Columns, "\t")))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeCSVFile(path string, t staff.Table) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return staff.WriteCSV(f, t)
}
