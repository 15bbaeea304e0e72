package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veritas/backend/internal/app"
	"github.com/veritas/backend/internal/claim"
	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/internal/media"
	"github.com/veritas/backend/internal/verify"
	"github.com/veritas/backend/internal/video"
	"github.com/veritas/backend/pkg/config"
	appLogger "github.com/veritas/backend/pkg/logger"
)

func main() {
	var services *app.Services
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "veritas",
		Short:         "Check claims for misinformation and media for deepfakes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, "stderr"); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			services, err = app.NewServices(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if services != nil {
				services.Close()
			}
			appLogger.Sync()
		},
	}

	text := &cobra.Command{
		Use:   "text <claim>",
		Short: "Verify a news claim against published fact checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claimText := strings.TrimSpace(strings.Join(args, " "))
			if claimText == "" {
				return errors.New("please enter some text to verify")
			}
			printText(cmd, services.Verifier.Verify(cmd.Context(), claimText))
			return nil
		},
	}

	image := &cobra.Command{
		Use:   "image <path|url>",
		Short: "Detect whether an image is a deepfake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cleanup, err := localFile(cmd.Context(), services.Fetcher, args[0], media.KindImage, cfg.Media.MaxImageBytes)
			if err != nil {
				return report(cmd, detection.KindImage, err)
			}
			defer cleanup()

			result, err := services.Detector.DetectImageFile(cmd.Context(), path)
			if err != nil {
				return report(cmd, detection.KindImage, err)
			}
			cmd.Println(result.Summary())
			return nil
		},
	}

	var stride int
	var reverse bool
	vid := &cobra.Command{
		Use:   "video <path|url>",
		Short: "Detect whether a video is a deepfake by sampling frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stride < 1 || stride > cfg.Video.MaxStride {
				return fmt.Errorf("--stride must be between 1 and %d", cfg.Video.MaxStride)
			}

			path, cleanup, err := localFile(cmd.Context(), services.Fetcher, args[0], media.KindVideo, cfg.Media.MaxVideoBytes)
			if err != nil {
				return report(cmd, detection.KindVideo, err)
			}
			defer cleanup()

			progress := func(p video.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rChecked %d/%d frames", p.Done, p.Total)
			}

			result, err := services.Detector.DetectVideo(cmd.Context(), path, video.Options{Stride: stride, Reverse: reverse}, progress)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return report(cmd, detection.KindVideo, err)
			}
			cmd.Println(result.Summary())
			cmd.Println(detection.VideoTip)
			return nil
		},
	}
	vid.Flags().IntVar(&stride, "stride", 30, "frame check interval (1 = every frame, higher = faster but less accurate)")
	vid.Flags().BoolVar(&reverse, "reverse", false, "also check frames in reverse order (slower)")

	root.AddCommand(text, image, vid)
	root.SetOut(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if code := exitCode(os.Stderr, root.ExecuteContext(ctx)); code != 0 {
		stop()
		os.Exit(code)
	}
}

// reportedError is an error whose message has already been shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func report(cmd *cobra.Command, kind detection.Kind, err error) error {
	cmd.Println(detection.Describe(kind, err))
	return &reportedError{err: err}
}

func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintln(w, err)
	}
	return 1
}

func printText(cmd *cobra.Command, result *verify.TextResult) {
	cmd.Printf("Claim: %s\n\n", result.Claim)
	cmd.Println(result.Analysis)
	if result.NoData {
		cmd.Printf("\n%s\n", verify.NoDataMessage)
		return
	}
	cmd.Printf("\nFact checks:\n%s", claim.FormatRecords(result.FactChecks))
}

// localFile returns a path on disk for arg, downloading it when it is a URL.
func localFile(ctx context.Context, fetcher *media.Fetcher, arg string, kind media.Kind, maxBytes int64) (string, func(), error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		path, err := fetcher.Download(ctx, arg, kind, maxBytes)
		if err != nil {
			return "", nil, err
		}
		return path, func() { os.Remove(path) }, nil
	}

	info, err := media.InspectFile(arg)
	if err != nil {
		return "", nil, err
	}
	if info.Kind != kind {
		return "", nil, fmt.Errorf("%s is %s, not a %s", arg, info.MIME, kind)
	}
	return arg, func() {}, nil
}
