package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/quillpost/internal/config"
	"github.com/quillpost/internal/db"
	"github.com/quillpost/internal/service"
	"github.com/spf13/cobra"
)

var (
	userName     string
	userEmail    string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account if the email is not registered yet",
	RunE:  runUserCreate,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage login sessions",
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired login sessions",
	RunE:  runSessionsPurge,
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "login password (at least 6 characters)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
}

func openAccounts() (*service.AccountService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}
	return service.NewAccountService(db.DB, cfg.SessionTTL), nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if len(userPassword) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	name := userName
	if name == "" {
		name = userEmail
	}

	accounts, err := openAccounts()
	if err != nil {
		return err
	}

	created, err := accounts.EnsureUser(cmd.Context(), name, userEmail, userPassword)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(cmd.OutOrStdout(), "account %s already exists\n", userEmail)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %s created\n", userEmail)
	return nil
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}
	start := time.Now()
	purged, err := accounts.PurgeExpiredSessions(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions in %s\n", purged, time.Since(start).Round(time.Millisecond))
	return nil
}
