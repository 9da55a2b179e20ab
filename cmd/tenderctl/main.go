// tenderctl is the offline maintenance tool: activity retention and
// trash cleanup that would otherwise wait for organic traffic.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/repository"
)

func main() {
	root := &cobra.Command{
		Use:          "tenderctl",
		Short:        "Maintenance commands for the tender service",
		SilenceUsage: true,
	}
	root.AddCommand(pruneActivityCmd(), emptyTrashCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openRepos() (*repository.Repositories, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return repository.NewRepositories(db), nil
}

func pruneActivityCmd() *cobra.Command {
	var (
		companyID string
		keep      int
	)
	cmd := &cobra.Command{
		Use:   "prune-activity",
		Short: "Delete activity events beyond the newest N for a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID == "" {
				return fmt.Errorf("--company is required")
			}
			repos, err := openRepos()
			if err != nil {
				return err
			}
			ctx := context.Background()
			ids, err := repos.Activity.IDsBeyondNewest(ctx, companyID, keep)
			if err != nil {
				return fmt.Errorf("scan events: %w", err)
			}
			if err := repos.Activity.DeleteByIDs(ctx, ids); err != nil {
				return fmt.Errorf("delete events: %w", err)
			}
			fmt.Printf("deleted %d events, kept newest %d\n", len(ids), keep)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company whose feed to prune")
	cmd.Flags().IntVar(&keep, "keep", 100, "number of newest events to keep")
	return cmd
}

func emptyTrashCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "empty-trash",
		Short: "Delete trash records past the retention cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := openRepos()
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-olderThan)
			deleted, err := repos.Trash.DeleteOlderThan(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("delete trash records: %w", err)
			}
			fmt.Printf("deleted %d trash records older than %s\n", deleted, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of trash records to delete")
	return cmd
}
