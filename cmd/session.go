package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage attendance sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an attendance session",
	Long: `Start an attendance session for a class and subject. Every student of the
class gets an absent record. If the class already has an active session for
the subject, that session is returned instead.

Examples:
  face-attendance session start --teacher T001 --subject 7 --section A --semester 3 --class "CSE-A"`,
	RunE: runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End an attendance session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionEnd,
}

var sessionActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active session of a class with its records",
	RunE:  runSessionActive,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionActiveCmd)

	sessionStartCmd.Flags().String("teacher", "", "Teacher ID")
	sessionStartCmd.Flags().Int64("subject", 0, "Subject ID")
	sessionStartCmd.Flags().String("class", "", "Class name")
	sessionStartCmd.Flags().Int("duration", 0, "Planned duration in minutes (informational)")
	sessionStartCmd.MarkFlagRequired("teacher")
	sessionStartCmd.MarkFlagRequired("subject")
	sessionStartCmd.MarkFlagRequired("class")

	sessionActiveCmd.Flags().Int64("subject", 0, "Only sessions of this subject")

	for _, c := range []*cobra.Command{sessionStartCmd, sessionActiveCmd} {
		addClassFlags(c)
	}
	for _, c := range []*cobra.Command{sessionStartCmd, sessionEndCmd, sessionActiveCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
}

// addClassFlags registers the required --section and --semester flags.
func addClassFlags(c *cobra.Command) {
	c.Flags().String("section", "", "Class section")
	c.Flags().String("semester", "", "Semester, 1-8 or I-VIII")
	c.MarkFlagRequired("section")
	c.MarkFlagRequired("semester")
}

func classFlags(cmd *cobra.Command) (string, int, error) {
	section := gallery.NormalizeSection(mustGetString(cmd, "section"))
	if section == "" {
		return "", 0, errors.New("--section is required")
	}
	semester, err := gallery.ParseSemester(mustGetString(cmd, "semester"))
	if err != nil {
		return "", 0, err
	}
	return section, semester, nil
}

func printSession(s *database.Session) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("  Class:    %s (section %s, semester %d)\n", s.ClassName, s.Section, s.Semester)
	fmt.Printf("  Subject:  %d\n", s.SubjectID)
	fmt.Printf("  Teacher:  %s\n", s.TeacherID)
	fmt.Printf("  Status:   %s\n", s.Status)
	fmt.Printf("  Started:  %s\n", s.StartTime.Local().Format("2006-01-02 15:04:05"))
	if s.EndTime != nil {
		fmt.Printf("  Ended:    %s\n", s.EndTime.Local().Format("2006-01-02 15:04:05"))
	}
}

func printRecords(records []database.Record) {
	if len(records) == 0 {
		fmt.Println("No attendance records.")
		return
	}
	var present, late int
	fmt.Printf("%-16s %-24s %-8s %-16s %-9s %s\n", "ENROLLMENT", "NAME", "STATUS", "MARKED BY", "ARRIVAL", "CONFIDENCE")
	for _, r := range records {
		switch r.Status {
		case database.StatusPresent:
			present++
		case database.StatusLate:
			late++
		}
		conf := "-"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Confidence)
		}
		fmt.Printf("%-16s %-24s %-8s %-16s %-9s %s\n", r.Identity, r.Name, r.Status, r.MarkedBy,
			formatTime(r.ArrivalTime), conf)
	}
	fmt.Printf("\n%d present, %d late, %d absent of %d\n", present, late, len(records)-present-late, len(records))
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	section, semester, err := classFlags(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sessions.Start(cmd.Context(), attendance.StartRequest{
		TeacherID:       mustGetString(cmd, "teacher"),
		SubjectID:       mustGetInt64(cmd, "subject"),
		Section:         section,
		Semester:        semester,
		ClassName:       mustGetString(cmd, "class"),
		DurationMinutes: mustGetInt(cmd, "duration"),
	})
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(res)
	}
	if res.Created {
		fmt.Printf("Started new session with %d students\n\n", res.RosterSize)
	} else {
		fmt.Printf("Session already active\n\n")
	}
	printSession(res.Session)
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.sessions.End(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(s)
	}
	printSession(s)
	return nil
}

func runSessionActive(cmd *cobra.Command, args []string) error {
	section, semester, err := classFlags(cmd)
	if err != nil {
		return err
	}
	var subjectID *int64
	if cmd.Flags().Changed("subject") {
		id := mustGetInt64(cmd, "subject")
		subjectID = &id
	}

	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.sessions.GetActive(cmd.Context(), section, semester, subjectID)
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Printf("No active session for section %s, semester %d\n", section, semester)
		return nil
	}
	records, err := a.sessions.Records(cmd.Context(), s.ID)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{"session": s, "records": records})
	}
	printSession(s)
	fmt.Println()
	printRecords(records)
	return nil
}
