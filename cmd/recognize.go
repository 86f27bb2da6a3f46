package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image> [image...]",
	Short: "Identify the face in one or more photos",
	Long: `Match the largest face of each photo against the gallery and print the
decision with its distance score. Lower scores are closer.

Example:
  faceid recognize ./door-camera.jpg
  faceid recognize --threshold 0.35 ./a.jpg ./b.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
	recognizeCmd.Flags().Float64("threshold", 0, "Match threshold override (0 uses the configured value)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	var opts engine.RecognizeOptions
	if t := mustFlag(cmd.Flags().GetFloat64, "threshold"); t != 0 {
		opts.Threshold = &t
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed++
			continue
		}
		res, err := a.engine.Recognize(ctx, data, opts)
		if err != nil {
			fmt.Printf("%s: error (%s): %v\n", path, face.KindOf(err), err)
			failed++
			continue
		}
		switch res.Label {
		case face.LabelMatch:
			fmt.Printf("%s: match %s (score %.4f)\n", path, res.IdentityKey, res.Score)
		case face.LabelNoMatch:
			fmt.Printf("%s: no match (best score %.4f)\n", path, res.Score)
		default:
			fmt.Printf("%s: no face\n", path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d photo(s) could not be recognized", failed, len(args))
	}
	return nil
}
