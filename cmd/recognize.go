package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces in an image",
	Long: `Recognize faces in an image against a published gallery. Without --section
and --semester the teachers gallery is used.

With --mark the image is treated as a live capture: recognized students are
marked in the active session of the class.

Examples:
  # Single face, class gallery
  face-attendance recognize capture.jpg --section A --semester 3

  # Group photo, mark everyone recognized
  face-attendance recognize group.jpg --section A --semester 3 --multiple --mark

  # Check that the face belongs to a given student
  face-attendance recognize capture.jpg --section A --semester 3 --verify S001`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("section", "", "Class section")
	recognizeCmd.Flags().String("semester", "", "Semester, 1-8 or I-VIII")
	recognizeCmd.Flags().Bool("multiple", false, "Recognize every face instead of the first one")
	recognizeCmd.Flags().Bool("mark", false, "Mark recognized students in the active session")
	recognizeCmd.Flags().String("verify", "", "Verify the face against this identity instead of searching")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	recognizeCmd.MarkFlagsMutuallyExclusive("mark", "verify")
	recognizeCmd.MarkFlagsMutuallyExclusive("multiple", "verify")
}

func printResult(r facematch.Result) {
	if !r.Matched {
		if r.Distance == nil {
			fmt.Println("  Unknown")
			return
		}
		fmt.Printf("  Unknown (distance %.3f)\n", *r.Distance)
		return
	}
	fmt.Printf("  %-16s %-24s %-8s confidence %.2f\n", r.Identity, r.Name, r.Role, r.Confidence)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	scope, err := gallery.NewScope(mustGetString(cmd, "section"), mustGetString(cmd, "semester"))
	if err != nil {
		return err
	}
	multiple := mustGetBool(cmd, "multiple")
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp(cmd.Context(), config.Load(), nil)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if identity := mustGetString(cmd, "verify"); identity != "" {
		v, err := a.recognizer.Verify(ctx, scope.Key(), identity, image)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", identity, err)
		}
		if jsonOutput {
			return outputJSON(v)
		}
		verdict := "does not match"
		if v.Verified {
			verdict = "matches"
		}
		fmt.Printf("Face %s %s (%s), distance %.3f over %d samples\n", verdict, v.Name, v.Identity, v.Distance, v.Samples)
		return nil
	}

	if mustGetBool(cmd, "mark") {
		if scope.Teachers() {
			return errors.New("--mark needs --section and --semester")
		}
		if multiple {
			out, err := a.recognizer.RecognizeMultipleAndMark(ctx, scope.Section, scope.Semester, image)
			if err != nil {
				return fmt.Errorf("recognizing: %w", err)
			}
			if jsonOutput {
				return outputJSON(out)
			}
			fmt.Printf("%d faces detected, %d students marked\n", out.FacesDetected, len(out.Marked))
			for _, m := range out.Marked {
				fmt.Printf("  %-16s %-24s %-8s confidence %.2f\n", m.Identity, m.Name, m.Status, m.Confidence)
			}
			return nil
		}
		out, err := a.recognizer.RecognizeAndMark(ctx, scope.Section, scope.Semester, image)
		if err != nil {
			return fmt.Errorf("recognizing: %w", err)
		}
		if jsonOutput {
			return outputJSON(out)
		}
		fmt.Println(out.Message)
		printResult(out.Recognition)
		return nil
	}

	if multiple {
		results, err := a.recognizer.IdentifyAll(ctx, scope.Key(), image)
		if err != nil {
			return fmt.Errorf("recognizing: %w", err)
		}
		if jsonOutput {
			return outputJSON(results)
		}
		fmt.Printf("%d faces detected in gallery %s\n", len(results), scope.Key())
		for _, r := range results {
			printResult(r)
		}
		return nil
	}

	result, err := a.recognizer.Identify(ctx, scope.Key(), image)
	if err != nil {
		return fmt.Errorf("recognizing: %w", err)
	}
	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("Gallery %s\n", scope.Key())
	printResult(result)
	return nil
}
