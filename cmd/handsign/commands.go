package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/knn"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/server"
	"github.com/ayusman/handsign/internal/speech"
	"github.com/ayusman/handsign/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				if addr != "" {
					cfg.Server.Addr = addr
				}

				staticDir := cfg.Server.StaticDir
				if staticDir == "" {
					staticDir = findWebDir()
				}
				if staticDir != "" {
					logging.Info().Str("dir", staticDir).Msg("Serving static files")
				}

				speaker := speech.NewSpeaker(cfg.Speech.Command, cfg.Speech.Args, cfg.Speech.Timeout)
				if !speaker.Enabled() {
					logging.Info().Msg("Speech disabled: no speech.command configured")
				}

				srv := server.New(server.Config{
					StaticDir:         staticDir,
					App:               a,
					Speaker:           speaker,
					CORSOrigins:       cfg.Server.CORSOrigins,
					RateLimitRequests: cfg.Server.RateLimitRequests,
					RateLimitWindow:   cfg.Server.RateLimitWindow,
					RateLimitDisabled: cfg.Server.RateLimitDisabled,
				})

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				logging.Info().
					Str("addr", cfg.Server.Addr).
					Str("db", cfg.Store.Path).
					Int("default_k", cfg.Classifier.DefaultK).
					Msg("Starting handsign")

				return srv.ListenAndServe(ctx, cfg.Server.Addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// newDetector builds the MediaPipe detector from configuration.
func newDetector(cfg *config.Config) (detector.Detector, error) {
	dcfg := detector.DefaultConfig()
	dcfg.Python = cfg.Detector.Python
	dcfg.Script = cfg.Detector.Script
	return detector.NewMediaPipeDetector(dcfg)
}

func classifyCmd() *cobra.Command {
	var (
		image string
		owner string
		k     int
		speak bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify the hand sign in an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				d, err := newDetector(cfg)
				if err != nil {
					return err
				}
				defer d.Close()

				frame, err := detector.LoadImage(image)
				if err != nil {
					return err
				}
				defer frame.Close()

				pred, hand, err := a.ClassifyFrame(owner, d, &frame, k)
				if err != nil {
					return err
				}

				fmt.Printf("Label: %s\n", pred.Label)
				fmt.Printf("Confidence: %.1f%% (%d of %d neighbors)\n", pred.Confidence, pred.Votes, pred.Neighbors)
				fmt.Printf("Hand: %s (score %.2f)\n", hand.Handedness, hand.Score)

				if speak {
					speaker := speech.NewSpeaker(cfg.Speech.Command, cfg.Speech.Args, cfg.Speech.Timeout)
					if _, err := speaker.Speak(cmd.Context(), []string{pred.Label}); err != nil {
						fmt.Printf("(speech skipped: %v)\n", err)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "image file to classify")
	cmd.Flags().StringVar(&owner, "owner", "default", "dataset owner")
	cmd.Flags().IntVar(&k, "k", 0, "neighbor count (default: owner setting)")
	cmd.Flags().BoolVar(&speak, "speak", false, "speak the recognized label")
	cmd.MarkFlagRequired("image")
	return cmd
}

func trainCmd() *cobra.Command {
	var (
		image string
		owner string
		label string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Record the hand sign in an image under a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				d, err := newDetector(cfg)
				if err != nil {
					return err
				}
				defer d.Close()

				frame, err := detector.LoadImage(image)
				if err != nil {
					return err
				}
				defer frame.Close()

				result, err := a.TrainFrame(owner, label, d, &frame)
				if err != nil {
					return err
				}

				fmt.Printf("Recorded sample %s as %q (%d samples total)\n", result.ID[:8], result.Label, result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "image file to record")
	cmd.Flags().StringVar(&owner, "owner", "default", "dataset owner")
	cmd.Flags().StringVar(&label, "label", "", "label for the sign")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("label")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		owner  string
		k      int
		device int
		speak  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recognize hand signs live from a camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				d, err := newDetector(cfg)
				if err != nil {
					return err
				}
				defer d.Close()

				cc := cfg.Camera
				if cmd.Flags().Changed("device") {
					cc.DeviceID = device
				}
				cam := capture.NewCamera(capture.CameraConfig{
					DeviceID: cc.DeviceID,
					Width:    cc.Width,
					Height:   cc.Height,
					FPS:      cc.IdleFPS,
				})
				motion := capture.NewMotionDetector(cc.MotionThreshold)
				defer motion.Close()
				gate := capture.NewMotionGate(capture.GateConfig{
					IdleFPS:     cc.IdleFPS,
					ActiveFPS:   cc.ActiveFPS,
					IdleTimeout: cc.IdleTimeout,
				})

				var speaker *speech.Speaker
				if speak {
					speaker = speech.NewSpeaker(cfg.Speech.Command, cfg.Speech.Args, cfg.Speech.Timeout)
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				fmt.Println("Watching; press Ctrl+C to stop.")
				return a.Watch(ctx, cam, motion, gate, d, app.WatchConfig{
					Owner:         owner,
					K:             k,
					StableFrames:  cc.StableFrames,
					MinConfidence: cc.MinConfidence,
				}, func(r app.Recognition) {
					fmt.Printf("%s  %-24s %.1f%%\n", r.At.Format("15:04:05"), r.Label, r.Confidence)
					if speaker.Enabled() {
						if _, err := speaker.Speak(ctx, []string{r.Label}); err != nil {
							logging.Warn().Err(err).Msg("Speech failed")
						}
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "default", "dataset owner")
	cmd.Flags().IntVar(&k, "k", 0, "neighbor count (default: owner setting)")
	cmd.Flags().IntVar(&device, "device", 0, "camera device (overrides camera.device_id)")
	cmd.Flags().BoolVar(&speak, "speak", false, "speak each recognized label")
	return cmd
}

func labelsCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List an owner's labels and sample counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				labels, err := a.Store().Samples().CountByLabel(owner)
				if err != nil {
					return err
				}
				if len(labels) == 0 {
					fmt.Println("No samples recorded.")
					return nil
				}

				for _, l := range labels {
					fmt.Printf("%-24s %d\n", l.Label, l.Count)
				}

				k, err := a.Store().Settings().GetK(owner)
				if errors.Is(err, store.ErrNotFound) {
					k, err = cfg.Classifier.DefaultK, nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("\nk = %d\n", k)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "default", "dataset owner")
	return cmd
}

func clearCmd() *cobra.Command {
	var (
		owner string
		label string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete an owner's samples, or only one label's",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(cfg *config.Config, a *app.App) error {
				var (
					removed int
					err     error
				)
				if label != "" {
					removed, err = a.DeleteLabel(owner, label)
				} else {
					removed, err = a.Clear(owner)
				}
				if err != nil {
					return err
				}

				fmt.Printf("Removed %d samples.\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "default", "dataset owner")
	cmd.Flags().StringVar(&label, "label", "", "only delete this label")
	return cmd
}

// describe renders a friendlier message for expected recognition failures.
func describe(err error) string {
	switch {
	case errors.Is(err, detector.ErrNoHand):
		return "no hand found in the image"
	case errors.Is(err, knn.ErrNoData):
		return "no samples recorded for this owner; train some signs first"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}
