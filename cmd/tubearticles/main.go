package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"TubeArticles/internal/app"
	"TubeArticles/internal/config"
	"TubeArticles/internal/domain"
	"TubeArticles/internal/logging"
)

const configPathEnv = "TUBEARTICLES_CONFIG"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "tubearticles",
		Short:         "Turn new YouTube videos into WordPress articles",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			if cfgFile != "" {
				_ = os.Setenv(configPathEnv, cfgFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config file (overrides "+configPathEnv+")")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor every active project until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				return a.Run(ctx)
			}, false)
		},
	}
	root.RunE = runCmd.RunE

	root.AddCommand(runCmd, migrateCommand(), statusCommand(), projectCommand())
	return root
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				logger.Info("schema applied")
				return nil
			}, true)
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print projects and their channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				statuses, err := a.Orchestrator().ListProjectStatuses(ctx)
				if err != nil {
					return err
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			}, true)
		},
	}
}

func projectCommand() *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Manage projects"}

	var input domain.NewProject
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its WordPress site and channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				id, err := a.Orchestrator().CreateProject(ctx, input)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}, true)
		},
	}
	create.Flags().StringVar(&input.Name, "name", "", "project name")
	create.Flags().StringVar(&input.Site.Name, "site-name", "", "WordPress site label (defaults to the project name)")
	create.Flags().StringVar(&input.Site.URL, "site-url", "", "WordPress base URL")
	create.Flags().StringVar(&input.Site.Username, "username", "", "WordPress user")
	create.Flags().StringVar(&input.Site.AppPassword, "app-password", "", "WordPress application password")
	create.Flags().StringSliceVar(&input.ChannelIDs, "channel", nil, "channel ID or URL (repeatable)")
	create.Flags().BoolVar(&input.AutoPublish, "auto-publish", true, "publish generated articles")

	remove := &cobra.Command{
		Use:   "delete PROJECT_ID",
		Short: "Delete a project and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				return a.Orchestrator().DeleteProject(ctx, args[0])
			}, true)
		},
	}

	articles := &cobra.Command{
		Use:   "articles PROJECT_ID",
		Short: "List publication records of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				list, err := a.Orchestrator().ListArticles(ctx, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PUBLISHED\tSTATUS\tVIDEO\tTITLE\tPOST")
				for _, art := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", art.PublishedAt.Format("2006-01-02 15:04"), art.Status, art.VideoID, art.Title, art.PostURL)
				}
				return w.Flush()
			}, true)
		},
	}

	project.AddCommand(create, remove, articles)
	return project
}

// withApp builds the application for one command. Admin commands run
// passive so that only the long-running "run" process owns monitors.
func withApp(ctx context.Context, fn func(context.Context, *app.Application, *slog.Logger) error, passive bool) error {
	cfg := config.Load()
	logger, logCloser := logging.NewWithFile(cfg.Logging.Level, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	var opts []app.Option
	if passive {
		opts = append(opts, app.Passive())
	}
	application, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		logger.Error("startup failed", "error", err, "kind", domain.Classify(err).String())
		return err
	}
	defer application.Close()

	if err := fn(ctx, application, logger); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	return nil
}

func printStatuses(out io.Writer, statuses []domain.ProjectStatus) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tNAME\tACTIVE\tSITE\tCHANNEL\tMONITORING\tAUTO-PUBLISH")
	for _, st := range statuses {
		site := "-"
		if st.Site != nil {
			site = st.Site.URL
		}
		if len(st.Channels) == 0 {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t-\t-\t-\n", st.Project.ID, st.Project.Name, st.Project.Active, site)
			continue
		}
		for _, ch := range st.Channels {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%t\t%t\n", st.Project.ID, st.Project.Name, st.Project.Active, site,
				ch.ExternalID, ch.MonitoringActive, ch.AutoPublish)
		}
	}
	_ = w.Flush()
}
