package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

func newTokenCmd() *cobra.Command {
	var p auth.Principal
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			p.Role = strings.ToLower(strings.TrimSpace(p.Role))
			if !auth.ValidRole(p.Role) {
				return fmt.Errorf("role must be %s or %s", auth.RoleStudent, auth.RoleAdmin)
			}
			tok, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL).GenerateToken(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&p.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&p.Role, "role", auth.RoleStudent, "student or admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ticket schema if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Open migrates
			repo, err := openRepo(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repo.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.StoreBackend)
			return nil
		},
	}
}

func newMappingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mapping", Short: "Category to office mapping"}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report mapping entries whose office no longer exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ref, err := refdata.Open(cfg.RefDataPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dangling := ref.DanglingMappings()
			if len(dangling) == 0 {
				fmt.Fprintf(out, "%d mapping entries, all offices resolve\n", len(ref.Mapping()))
				return nil
			}
			for _, m := range dangling {
				fmt.Fprintf(out, "%s -> %s: office not found\n", m.Category, m.OfficeID)
			}
			return fmt.Errorf("%d dangling mapping entries", len(dangling))
		},
	})
	return cmd
}
