package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/constants"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <image|folder> [image|folder...]",
	Short: "Register face photos under an identity",
	Long: `Register one or more photos of the same person under an identity key.

Folders are scanned for images (non-recursive unless -r is given). Every photo
must contain exactly one face. Only the newest embeddings up to the configured
per-identity limit are kept.
Supported formats: jpg, jpeg, png, gif, bmp, tiff, webp

Example:
  faceid enroll alice ./photos/alice.jpg
  faceid enroll -r alice ./photos/alice/`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().BoolP("recursive", "r", false, "Search for photos recursively in subdirectories")
	enrollCmd.Flags().Int("workers", constants.WorkerPoolSize, "Number of photos encoded in parallel")
}

// isImageFile checks if a file has an extension the decoder supports.
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// collectImages expands folders into the image files they contain. Plain file
// arguments are kept as given.
func collectImages(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		if recursive {
			err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", path, err)
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}
	return files, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	identity := args[0]
	workers := max(mustFlag(cmd.Flags().GetInt, "workers"), 1)

	files, err := collectImages(args[1:], mustFlag(cmd.Flags().GetBool, "recursive"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No image files found.")
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Enrolling %d photo(s) as %q\n\n", len(files), identity)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var (
		failures []string
		enrolled int
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, workers)
	)

	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := enrollFile(ctx, a, identity, path)
			mu.Lock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			} else {
				enrolled++
			}
			mu.Unlock()
			bar.Add(1)
		}(file)
	}
	wg.Wait()
	fmt.Println()

	for _, msg := range failures {
		fmt.Printf("Failed: %s\n", msg)
	}
	if enrolled == 0 {
		return fmt.Errorf("no photos were enrolled")
	}

	status, err := a.engine.Status(identity)
	if err != nil {
		return err
	}
	fmt.Printf("\nDone! Enrolled %d photo(s); %q now has %d embedding(s)\n", enrolled, status.IdentityKey, status.EmbeddingCount)
	return nil
}

func enrollFile(ctx context.Context, a *app, identity, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return err
	}
	_, err = a.engine.Register(ctx, identity, data)
	return err
}
