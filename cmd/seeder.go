package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/production-management/internal/seed"
	"github.com/spf13/cobra"
)

var (
	seedAdminLogin    string
	seedAdminEmail    string
	seedAdminPassword string
	seedSampleData    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the permission catalog, default roles and an admin",
	Long: `Seed the database with the immutable permission catalog, the built-in roles,
an administrator account and optionally demo inventory. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			if err := seed.Clear(ctx, gormDB); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		if err := seed.Permissions(ctx, gormDB); err != nil {
			log.Fatalf("failed to seed permissions: %v", err)
		}
		if err := seed.Roles(ctx, gormDB); err != nil {
			log.Fatalf("failed to seed roles: %v", err)
		}
		fmt.Println("Seeded permission catalog and default roles")

		if err := seed.AdminUser(ctx, gormDB, seedAdminLogin, seedAdminEmail, seedAdminPassword, cfg.Security.BCryptCost); err != nil {
			log.Fatalf("failed to seed admin user: %v", err)
		}
		fmt.Println("Ensured admin user:", seedAdminLogin)

		if seedSampleData {
			if err := seed.SampleItems(ctx, gormDB); err != nil {
				log.Fatalf("failed to seed sample items: %v", err)
			}
			fmt.Println("Seeded sample inventory")
		}
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminLogin, "admin-login", "admin", "login of the seeded administrator")
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@example.com", "email of the seeded administrator")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "password", "initial password of the seeded administrator")
	seedCmd.Flags().BoolVar(&seedSampleData, "sample", false, "also insert demo inventory items")
}
