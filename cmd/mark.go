package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark attendance manually",
}

var markPresentCmd = &cobra.Command{
	Use:   "present <session-id> <enrollment-number>",
	Short: "Mark a student present (or late, after the late threshold)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMarkPresent,
}

var markAbsentCmd = &cobra.Command{
	Use:   "absent <session-id> <enrollment-number>",
	Short: "Override a student's record to absent",
	Args:  cobra.ExactArgs(2),
	RunE:  runMarkAbsent,
}

func init() {
	rootCmd.AddCommand(markCmd)
	markCmd.AddCommand(markPresentCmd)
	markCmd.AddCommand(markAbsentCmd)

	markPresentCmd.Flags().Float64("confidence", 1.0, "Recognition confidence to record")
	markPresentCmd.Flags().String("marked-by", string(database.MarkedByManual), "Marker: system, manual or teacher_override")
	for _, c := range []*cobra.Command{markPresentCmd, markAbsentCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
}

func printRecord(r *database.Record) {
	fmt.Printf("%s (%s) is %s\n", r.Name, r.Identity, r.Status)
	fmt.Printf("  Marked by: %s\n", r.MarkedBy)
	if r.ArrivalTime != nil {
		fmt.Printf("  Arrival:   %s\n", formatTime(r.ArrivalTime))
	}
	if r.TimeDifferenceMinutes != nil {
		fmt.Printf("  Minutes after start: %d\n", *r.TimeDifferenceMinutes)
	}
}

func runMarkPresent(cmd *cobra.Command, args []string) error {
	markedBy := database.MarkedBy(mustGetString(cmd, "marked-by"))
	if !markedBy.Valid() {
		return fmt.Errorf("invalid --marked-by %q", markedBy)
	}
	confidence := mustGetFloat64(cmd, "confidence")
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("--confidence must be between 0 and 1, got %v", confidence)
	}

	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.marking.MarkPresent(cmd.Context(), args[0], args[1], confidence, markedBy)
	if err != nil {
		return fmt.Errorf("marking %s present: %w", args[1], err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(rec)
	}
	printRecord(rec)
	return nil
}

func runMarkAbsent(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.marking.MarkAbsent(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("marking %s absent: %w", args[1], err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(rec)
	}
	printRecord(rec)
	return nil
}
