package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/frahmantamala/production-management/pkg/apiclient"
	"github.com/frahmantamala/production-management/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	whoamiURL      string
	whoamiLogin    string
	whoamiPassword string
	whoamiJSON     bool
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Log in to a running server and print the effective permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		password := whoamiPassword
		if password == "" {
			password = os.Getenv("PM_PASSWORD")
		}

		client := apiclient.New(whoamiURL, apiclient.NewMemoryStore(), apiclient.WithLogger(logger.LoggerWrapper()))
		if _, err := client.Login(ctx, whoamiLogin, password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		defer func() {
			if err := client.Logout(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "logout: %v\n", err)
			}
		}()

		me, err := client.Me(ctx)
		if err != nil {
			return fmt.Errorf("me: %w", err)
		}

		out := cmd.OutOrStdout()
		if whoamiJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(me)
		}

		fmt.Fprintf(out, "%s <%s> id=%d superuser=%t\n", me.Login, me.Email, me.ID, me.IsSuperuser)
		for _, r := range me.Roles {
			fmt.Fprintf(out, "role: %s\n", r.Name)
		}
		keys := make([]string, 0, len(me.Permissions))
		for k := range me.Permissions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%-24s %d\n", k, me.Permissions[k])
		}
		return nil
	},
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiURL, "url", "http://localhost:8080", "server base URL")
	whoamiCmd.Flags().StringVar(&whoamiLogin, "login", "admin", "login name or email")
	whoamiCmd.Flags().StringVar(&whoamiPassword, "password", "", "password (defaults to $PM_PASSWORD)")
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "print the raw profile as JSON")

	rootCmd.AddCommand(whoamiCmd)
}
