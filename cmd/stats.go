package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Attendance statistics and reports",
}

var statsSubjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Per-student statistics of a class in one subject",
	RunE:  runStatsSubject,
}

var statsLowCmd = &cobra.Command{
	Use:   "low",
	Short: "List students below an attendance threshold",
	RunE:  runStatsLow,
}

var statsStudentCmd = &cobra.Command{
	Use:   "student <enrollment-number>",
	Short: "Attendance history of one student",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatsStudent,
}

var statsRefreshCmd = &cobra.Command{
	Use:   "refresh <enrollment-number>",
	Short: "Recompute the cached attendance summary of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatsRefresh,
}

var statsDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Sessions held on a date with their attendance counts",
	RunE:  runStatsDaily,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsSubjectCmd, statsLowCmd, statsStudentCmd, statsRefreshCmd, statsDailyCmd)

	for _, c := range []*cobra.Command{statsSubjectCmd, statsLowCmd} {
		addClassFlags(c)
		c.Flags().Int64("subject", 0, "Subject ID")
		c.MarkFlagRequired("subject")
	}
	for _, c := range []*cobra.Command{statsSubjectCmd, statsStudentCmd} {
		c.Flags().String("from", "", "First date, YYYY-MM-DD")
		c.Flags().String("to", "", "Last date, YYYY-MM-DD")
	}
	statsLowCmd.Flags().Float64("threshold", 75, "Attendance percentage threshold")
	statsStudentCmd.Flags().Int64("subject", 0, "Only this subject")
	statsRefreshCmd.Flags().Int64("subject", 0, "Subject ID")
	statsRefreshCmd.Flags().Int("semester", 0, "Semester")
	statsRefreshCmd.MarkFlagRequired("subject")
	statsRefreshCmd.MarkFlagRequired("semester")
	statsDailyCmd.Flags().String("date", "", "Date, YYYY-MM-DD (default today)")
	statsDailyCmd.Flags().String("section", "", "Only this section")

	for _, c := range statsCmd.Commands() {
		c.Flags().Bool("json", false, "Output as JSON")
	}
}

func parseDateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	v := mustGetString(cmd, name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", name, v)
	}
	return &t, nil
}

func dateRangeFlags(cmd *cobra.Command) (stats.DateRange, error) {
	from, err := parseDateFlag(cmd, "from")
	if err != nil {
		return stats.DateRange{}, err
	}
	to, err := parseDateFlag(cmd, "to")
	if err != nil {
		return stats.DateRange{}, err
	}
	return stats.DateRange{From: from, To: to}, nil
}

func printStudentStats(students []stats.StudentStats) {
	fmt.Printf("%-16s %-24s %7s %7s %6s %6s %7s\n", "ENROLLMENT", "NAME", "CLASSES", "PRESENT", "LATE", "ABSENT", "PERCENT")
	for _, s := range students {
		fmt.Printf("%-16s %-24s %7d %7d %6d %6d %6.1f%%\n", s.Identity, s.Name, s.TotalClasses,
			s.Present, s.Late, s.Absent, s.Percentage)
	}
}

func runStatsSubject(cmd *cobra.Command, args []string) error {
	section, semester, err := classFlags(cmd)
	if err != nil {
		return err
	}
	dr, err := dateRangeFlags(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.aggregator.SubjectStats(cmd.Context(), section, semester, mustGetInt64(cmd, "subject"), dr)
	if err != nil {
		return fmt.Errorf("computing statistics: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}
	fmt.Printf("Section %s, semester %d: %d classes held\n\n", section, semester, result.TotalClasses)
	printStudentStats(result.Students)
	return nil
}

func runStatsLow(cmd *cobra.Command, args []string) error {
	section, semester, err := classFlags(cmd)
	if err != nil {
		return err
	}
	threshold := mustGetFloat64(cmd, "threshold")
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("--threshold must be between 0 and 100, got %v", threshold)
	}
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.aggregator.LowAttendance(cmd.Context(), section, semester, mustGetInt64(cmd, "subject"), threshold)
	if err != nil {
		return fmt.Errorf("computing statistics: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(students)
	}
	if len(students) == 0 {
		fmt.Printf("No students below %.1f%%\n", threshold)
		return nil
	}
	fmt.Printf("%d students below %.1f%%\n\n", len(students), threshold)
	printStudentStats(students)
	return nil
}

func runStatsStudent(cmd *cobra.Command, args []string) error {
	dr, err := dateRangeFlags(cmd)
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

	h, err := a.aggregator.StudentHistory(cmd.Context(), args[0], subjectID, dr)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(h)
	}
	st := h.Statistics
	fmt.Printf("%s: attended %d of %d classes (%.1f%%), %d late, %d absent\n\n",
		h.Identity, st.Attended, st.TotalClasses, st.Percentage, st.Late, st.Absent)
	for _, e := range h.Records {
		fmt.Printf("  %s  subject %-4d %-12s %-8s %s\n", e.SessionDate.Format(time.DateOnly), e.SubjectID,
			e.ClassName, e.Status, formatTime(e.ArrivalTime))
	}
	return nil
}

func runStatsRefresh(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.aggregator.RefreshSummary(cmd.Context(), args[0], mustGetInt64(cmd, "subject"), mustGetInt(cmd, "semester"))
	if err != nil {
		return fmt.Errorf("refreshing summary: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(s)
	}
	fmt.Printf("Summary of %s updated: %d classes, %d present, %d late, %d absent (%.1f%%)\n",
		s.Identity, s.TotalClasses, s.PresentCount, s.LateCount, s.AbsentCount, s.Percentage)
	return nil
}

func runStatsDaily(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag(cmd, "date")
	if err != nil {
		return err
	}
	day := time.Now().UTC()
	if date != nil {
		day = *date
	}
	section := gallery.NormalizeSection(mustGetString(cmd, "section"))

	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.aggregator.DailyReport(cmd.Context(), day, section)
	if err != nil {
		return fmt.Errorf("building daily report: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}
	if len(report) == 0 {
		fmt.Printf("No sessions on %s\n", day.Format(time.DateOnly))
		return nil
	}
	fmt.Printf("Sessions on %s\n\n", day.Format(time.DateOnly))
	for _, d := range report {
		fmt.Printf("  %s  %-12s %s/%d subject %-4d %3d present %3d late %3d absent of %d\n",
			d.Session.StartTime.Local().Format("15:04"), d.Session.ClassName, d.Session.Section,
			d.Session.Semester, d.Session.SubjectID, d.Present, d.Late, d.Absent, d.Total)
	}
	return nil
}
