package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	auth "github.com/hanpama/blogql/internal/auth"
	blog "github.com/hanpama/blogql/internal/blog"
	blogrt "github.com/hanpama/blogql/internal/blogrt"
	schema "github.com/hanpama/blogql/internal/schema"
	store "github.com/hanpama/blogql/internal/store"
)

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the GraphQL schema in SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sch, err := blogrt.Schema()
			if err != nil {
				return fmt.Errorf("build schema: %w", err)
			}
			sdl := schema.Render(sch)
			if out == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), sdl)
				return err
			}
			return os.WriteFile(out, []byte(sdl), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the SDL to a file instead of stdout")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Database
			cfg.SkipMigrations = true
			st, err := store.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(); err != nil {
				return err
			}
			a.logger.Info("database migrated", zap.String("path", cfg.Path))
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.Path)
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo users, posts and comments",
		Long: "Insert demo users, posts and comments. Every seeded user has the password " +
			blog.SeedPassword + ". Seeding a database that already has the demo users adds nothing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireSecrets(); err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), a.cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()
			issuer, err := auth.NewIssuer(a.cfg.Auth)
			if err != nil {
				return err
			}
			res, err := blog.NewService(st, issuer).Seed(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("database seeded",
				zap.Int("users", res.Users), zap.Int("posts", res.Posts), zap.Int("comments", res.Comments))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d posts, %d comments\n", res.Users, res.Posts, res.Comments)
			return nil
		},
	}
}
