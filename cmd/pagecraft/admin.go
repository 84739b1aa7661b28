package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pagecraft/internal/config"
	"github.com/pagecraft/internal/db"
	"github.com/spf13/cobra"
)

func newCreateAdminCmd(load func() config.AppConfig) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long: `Creates an admin account for the JSON admin API.
Without flags the ADMIN_USER_NAME and ADMIN_PASSWORD variables are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			if strings.TrimSpace(username) == "" {
				username = cfg.AdminUserName
			}
			if strings.TrimSpace(password) == "" {
				password = cfg.AdminPassword
			}
			if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
				return errors.New("username and password are required")
			}

			gdb, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer func() {
				if sqlDB, err := gdb.DB(); err == nil {
					sqlDB.Close()
				}
			}()

			created, err := db.EnsureUser(gdb, username, password)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "user %q already exists\n", strings.TrimSpace(username))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin user %q created\n", strings.TrimSpace(username))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin user name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password")
	return cmd
}
