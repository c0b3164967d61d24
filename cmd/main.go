package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/content"
	"github.com/victornm/livequiz/internal/database"
	"github.com/victornm/livequiz/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "livequiz",
		Short:         "Live quiz session engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "config file (env CONFIG_PATH)")

	root.AddCommand(serveCmd(&configPath), migrateCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			errc := make(chan error, 1)
			go func() { errc <- s.Start() }()

			select {
			case <-shutdown:
			case err = <-errc:
				log.Printf("Server stopped: %v", err)
			}

			s.Shutdown()
			return err
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	var seed string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and optionally seed quizzes from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			db, err := database.Connect(ctx, c.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			if seed == "" {
				return nil
			}

			fs, err := content.NewFileStore(seed)
			if err != nil {
				return err
			}

			ps := content.NewPostgresStore(db)
			for _, q := range fs.Quizzes() {
				if err := ps.SaveQuiz(ctx, q); err != nil {
					return fmt.Errorf("seed quiz %s: %w", q.ID, err)
				}
			}

			log.Printf("Seeded %d quizzes from %s", len(fs.Quizzes()), seed)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "YAML quiz file to upsert into the quizzes table")

	return cmd
}

func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
