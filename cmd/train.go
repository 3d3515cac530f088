package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build and publish a face gallery",
	Long: `Build the face gallery of a class (or of all teachers) from the enrollment
photos and publish it as the new version used for recognition.

Examples:
  # Gallery of section A, semester 3
  face-attendance train --section A --semester 3

  # Roman semesters work too
  face-attendance train --section b --semester IV

  # Teachers gallery
  face-attendance train

  # JSON output for scripting
  face-attendance train --section A --semester 3 --json`,
	RunE: runTrain,
}

var galleriesCmd = &cobra.Command{
	Use:   "galleries",
	Short: "List published galleries",
	RunE:  runGalleries,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(galleriesCmd)

	trainCmd.Flags().String("section", "", "Class section (omit together with --semester for the teachers gallery)")
	trainCmd.Flags().String("semester", "", "Semester, 1-8 or I-VIII")
	trainCmd.Flags().Int("concurrency", 0, "Number of parallel detection workers (overrides GALLERY_CONCURRENCY)")
	trainCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")

	galleriesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runTrain(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	scope, err := gallery.NewScope(mustGetString(cmd, "section"), mustGetString(cmd, "semester"))
	if err != nil {
		return err
	}

	cfg := config.Load()
	if n := mustGetInt(cmd, "concurrency"); n > 0 {
		cfg.Gallery.Concurrency = n
	}
	a, err := openApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {}
	if !jsonOutput {
		fmt.Printf("Building %s gallery for scope %s\n\n", scope.EntityType(), scope.Key())
		progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Encoding faces"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("images"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			bar.Set(done)
		}
	}

	started := time.Now()
	result, err := a.trainer.Train(cmd.Context(), scope, progress)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("building gallery %s: %w", scope.Key(), err)
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println("\nGallery published!")
	fmt.Printf("  Scope:        %s\n", result.Meta.Scope)
	fmt.Printf("  Version:      %s\n", result.Meta.Version)
	fmt.Printf("  Participants: %d\n", result.Meta.ParticipantCount)
	fmt.Printf("  Encodings:    %d\n", result.Meta.EncodingCount)
	fmt.Printf("  Images:       %d (%d skipped)\n", result.ImagesTotal, result.ImagesSkipped)
	fmt.Printf("  Duration:     %s\n", formatDuration(time.Since(started)))
	if len(result.Warnings) > 0 {
		fmt.Printf("\nIdentities with few encodings:\n")
		for _, w := range result.Warnings {
			fmt.Printf("  %-16s %-24s %d\n", w.Identity, w.Name, w.Count)
		}
	}
	return nil
}

func runGalleries(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	metas, err := a.store.ListGalleryMeta(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing galleries: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(metas)
	}
	if len(metas) == 0 {
		fmt.Println("No galleries published yet.")
		return nil
	}
	fmt.Printf("%-10s %-8s %-24s %6s %9s  %s\n", "SCOPE", "TYPE", "VERSION", "PEOPLE", "ENCODINGS", "UPDATED")
	for _, m := range metas {
		fmt.Printf("%-10s %-8s %-24s %6d %9d  %s\n", m.Scope, m.EntityType, m.Version,
			m.ParticipantCount, m.EncodingCount, m.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}
