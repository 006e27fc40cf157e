package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"customcolors/internal/app"
	"customcolors/internal/domain"
	"customcolors/internal/infra"
	"customcolors/pkg/zip"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "colorctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "colorctl",
		Short: "Operational CLI for the coloring page service",
		Long: `colorctl runs maintenance tasks against the configured artifact store:
reaper sweeps, offline book assembly, PDF inspection, artifact export
and config checks.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file to load")
	cmd.AddCommand(
		newSweepCmd(),
		newAssembleCmd(),
		newInspectCmd(),
		newExportCmd(),
		newConfigCmd(),
	)
	return cmd
}

func loadRuntime() (*infra.Config, *infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	return cfg, &logger, nil
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the retention window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			store, err := app.NewArtifactStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			res, err := store.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d deleted=%d failed=%d\n", res.Scanned, res.Deleted, res.Failed)
			return nil
		},
	}
}

func newAssembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <image-url>...",
		Short: "Assemble page images into a PDF in the artifact store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			store, err := app.NewArtifactStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			assembler, err := app.NewAssembler(cfg, store, logger)
			if err != nil {
				return err
			}
			artifact, err := assembler.Assemble(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.URL(artifact))
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Print page count and page sizes of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			return inspectPDF(cmd.OutOrStdout(), f, info.Size())
		},
	}
}

func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <artifact-id>...",
		Short: "Bundle stored artifacts into a zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			store, err := app.NewArtifactStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := exportArtifacts(cmd.Context(), f, store, args); err != nil {
				f.Close()
				os.Remove(outPath)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d artifacts to %s\n", len(args), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "artifacts.zip", "Archive path")
	return cmd
}

type artifactOpener interface {
	Resolve(ctx context.Context, id string) (domain.Artifact, error)
	Open(ctx context.Context, id string) (io.ReadCloser, domain.Artifact, error)
}

// exportArtifacts resolves every id up front so a missing artifact fails
// before anything is written.
func exportArtifacts(ctx context.Context, w io.Writer, store artifactOpener, ids []string) error {
	entries := make([]zip.Entry, 0, len(ids))
	for _, id := range ids {
		artifact, err := store.Resolve(ctx, id)
		if err != nil {
			return err
		}
		entries = append(entries, zip.Entry{
			Filename: artifact.ID,
			Modified: artifact.CreatedAt,
			Open: func() (io.ReadCloser, error) {
				rc, _, err := store.Open(ctx, artifact.ID)
				return rc, err
			},
		})
	}
	return zip.WriteArchive(w, entries)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate configuration and print the effective windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public_base_url     %s\n", cfg.PublicBaseURL)
			fmt.Fprintf(out, "storage_backend     %s\n", cfg.StorageBackend)
			fmt.Fprintf(out, "artifact_retention  %s\n", cfg.ArtifactRetention)
			fmt.Fprintf(out, "reaper_schedule     %s\n", cfg.ReaperSchedule)
			fmt.Fprintf(out, "download_token_ttl  %s\n", cfg.DownloadTokenTTL)
			fmt.Fprintf(out, "poll                %s x %d\n", cfg.GenerationPollInterval, cfg.GenerationMaxAttempts)
			fmt.Fprintf(out, "image_hosts         %v\n", cfg.ImageSourceAllowlist)
			return nil
		},
	}
}

func inspectPDF(w io.Writer, r io.ReaderAt, size int64) error {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	n := doc.NumPage()
	fmt.Fprintf(w, "pages: %d\n", n)
	for i := 1; i <= n; i++ {
		width, height := pageSize(doc.Page(i))
		fmt.Fprintf(w, "%3d  %.0fx%.0f\n", i, width, height)
	}
	return nil
}

func pageSize(p pdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	if box.Kind() == pdf.Null {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	return box.Index(2).Float64() - box.Index(0).Float64(), box.Index(3).Float64() - box.Index(1).Float64()
}
