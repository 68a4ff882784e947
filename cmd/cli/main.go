// Package main provides the local watermarking CLI working against a filesystem blob store.
//
// Run with: go run ./cmd/cli apply --mode auto --out ./out a.jpg b.jpg
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/pipeline"
	"github.com/UnendingLoop/watermarker/internal/service"
	"github.com/UnendingLoop/watermarker/internal/settings"
	"github.com/UnendingLoop/watermarker/internal/storage"
	"github.com/UnendingLoop/watermarker/internal/storage/fsstorage"
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app - всё, что собирается поверх каталога с данными
type app struct {
	admin    *service.AdminService
	pipeline *pipeline.Pipeline
	settings *settings.Store
}

type globalOpts struct {
	dataDir  string
	logLevel string
}

func (o *globalOpts) build() (*app, error) {
	zlog.InitConsole()
	if err := zlog.SetLevel(o.logLevel); err != nil {
		return nil, fmt.Errorf("setting log level: %w", err)
	}

	fs, err := fsstorage.New(o.dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}
	blobs := storage.NewByteBlobs(fs)

	cache := assets.NewCache(blobs, zlog.Logger)
	st := settings.NewStore(blobs, zlog.Logger)

	return &app{
		admin:    service.NewAdminService(blobs, cache, st),
		pipeline: pipeline.New(cache, st, zlog.Logger),
		settings: st,
	}, nil
}

// rootCmd builds the command tree:
// watermark-cli apply | logo set/rm | settings show/set | inspect
func rootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:          "watermark-cli",
		Short:        "Batch watermarking with locally stored logos and settings",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "./data", "Directory holding logos and settings")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(applyCmd(opts), logoCmd(opts), settingsCmd(opts), inspectCmd(opts))
	return root
}

func applyCmd(opts *globalOpts) *cobra.Command {
	var mode, outDir string

	cmd := &cobra.Command{
		Use:   "apply [files...]",
		Short: "Watermark images and write watermarked_<name>.jpg files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			return runApply(cmd, a, model.Mode(mode), outDir, args)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(model.ModeAuto), "Logo mode: auto, dark, light")
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory")
	return cmd
}

func runApply(cmd *cobra.Command, a *app, mode model.Mode, outDir string, files []string) error {
	out := cmd.OutOrStdout()

	items := make([]model.BatchItem, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}
		items = append(items, model.BatchItem{Name: filepath.Base(f), Data: data})
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	results, err := a.pipeline.ProcessBatch(cmd.Context(), items, mode, func(percent float64, done, total int) {
		fmt.Fprintf(out, "[%3.0f%%] %d/%d\n", percent, done, total)
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !res.Succeeded {
			failed++
			fmt.Fprintf(out, "FAIL %s: %s\n", res.Name, res.Error)
			continue
		}
		path := filepath.Join(outDir, OutputName(res.Name))
		if err := os.WriteFile(path, res.Output, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(out, "OK   %s -> %s (%s)\n", res.Name, path, res.Variant)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}

// OutputName - watermarked_<имя без расширения>.jpg
func OutputName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return "watermarked_" + base + ".jpg"
}

func logoCmd(opts *globalOpts) *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:   "logo",
		Short: "Manage dark and light logos",
	}
	cmd.PersistentFlags().StringVar(&variant, "variant", string(model.VariantDark), "Logo variant: dark, light")

	set := &cobra.Command{
		Use:   "set [file]",
		Short: "Store a logo for the variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading logo: %w", err)
			}
			if err := a.admin.UploadWatermark(cmd.Context(), model.Variant(variant), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s logo stored\n", variant)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm",
		Short: "Remove the logo of the variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			if err := a.admin.DeleteWatermark(cmd.Context(), model.Variant(variant)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s logo removed\n", variant)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which logos are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			infos, err := a.admin.WatermarkStatus(cmd.Context())
			if err != nil {
				return err
			}
			for _, i := range infos {
				if !i.Present {
					fmt.Fprintf(cmd.OutOrStdout(), "%-5s missing\n", i.Variant)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-5s %dx%d (aspect %.3f)\n", i.Variant, i.Width, i.Height, i.AspectRatio)
			}
			return nil
		},
	}

	cmd.AddCommand(set, rm, status)
	return cmd
}

func settingsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change watermark settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			s, err := a.admin.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		},
	}

	var (
		portrait, landscape, margin, threshold float64
		dpi, quality                           int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change only the given settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			s, err := a.admin.GetSettings(cmd.Context())
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("portrait") {
				s.SizePercentPortrait = portrait
			}
			if f.Changed("landscape") {
				s.SizePercentLandscape = landscape
			}
			if f.Changed("margin") {
				s.BottomMarginCm = margin
			}
			if f.Changed("dpi") {
				s.DPI = dpi
			}
			if f.Changed("quality") {
				s.Quality = quality
			}
			if f.Changed("threshold") {
				s.BrightnessThreshold = threshold
			}

			if err := a.admin.SaveSettings(cmd.Context(), s); err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		},
	}
	set.Flags().Float64Var(&portrait, "portrait", 0, "Logo width for portrait images, % of image width")
	set.Flags().Float64Var(&landscape, "landscape", 0, "Logo width for landscape images, % of image width")
	set.Flags().Float64Var(&margin, "margin", 0, "Bottom margin, cm")
	set.Flags().IntVar(&dpi, "dpi", 0, "DPI used to convert the margin to pixels")
	set.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1-100")
	set.Flags().Float64Var(&threshold, "threshold", 0, "Brightness threshold 0-255")

	cmd.AddCommand(show, set)
	return cmd
}

func printSettings(cmd *cobra.Command, s model.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "portrait:   %g%%\n", s.SizePercentPortrait)
	fmt.Fprintf(out, "landscape:  %g%%\n", s.SizePercentLandscape)
	fmt.Fprintf(out, "margin:     %g cm\n", s.BottomMarginCm)
	fmt.Fprintf(out, "dpi:        %d\n", s.DPI)
	fmt.Fprintf(out, "quality:    %d\n", s.Quality)
	fmt.Fprintf(out, "threshold:  %g\n", s.BrightnessThreshold)
}

func inspectCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [files...]",
		Short: "Print bottom-band brightness and the variant auto mode would pick",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			s, err := a.settings.Load(cmd.Context())
			if err != nil {
				zlog.Logger.Warn().Err(err).Msg("Using default watermark settings")
			}

			for _, f := range args {
				data, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("reading %s: %w", f, err)
				}
				bmp, err := imageproc.Decode(data)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", filepath.Base(f), err)
					continue
				}
				b := imageproc.BottomBandBrightness(bmp, s.BrightnessThreshold)
				w, h := bmp.Bounds().Dx(), bmp.Bounds().Dy()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s bottom brightness %.1f -> %s logo\n",
					filepath.Base(f), w, h, model.OrientationOf(w, h), b, pipeline.ChooseVariant(b, s.BrightnessThreshold))
			}
			return nil
		},
	}
}
