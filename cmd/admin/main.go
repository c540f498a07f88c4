package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/ealicense/internal/auth"
	"github.com/adamscao/ealicense/internal/bot"
	"github.com/adamscao/ealicense/internal/config"
	"github.com/adamscao/ealicense/internal/db"
	"github.com/adamscao/ealicense/internal/db/repository"
	"github.com/adamscao/ealicense/internal/license"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "EA license server administration tool",
	Long:          "Administrative tool for issuing, inspecting and revoking EA licenses directly against the license database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Manage licenses",
}

var licenseIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue or re-issue a license for an account",
	RunE:  issueLicense,
}

var licenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all licenses",
	RunE:  listLicenses,
}

var licenseCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Show the license status of an account",
	RunE:  checkLicense,
}

var licenseRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Deactivate the license of an account",
	RunE:  revokeLicense,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a random admin API token",
	RunE:  generateToken,
}

var (
	accountID string
	ownerID   int64
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (environment only when empty)")

	// License flags
	for _, c := range []*cobra.Command{licenseIssueCmd, licenseCheckCmd, licenseRevokeCmd} {
		c.Flags().StringVarP(&accountID, "account", "a", "", "MT5 account number (required)")
		c.MarkFlagRequired("account")
	}
	licenseIssueCmd.Flags().Int64Var(&ownerID, "owner", 0, "Telegram user id recorded as the owner")

	// Add commands
	licenseCmd.AddCommand(licenseIssueCmd)
	licenseCmd.AddCommand(licenseListCmd)
	licenseCmd.AddCommand(licenseCheckCmd)
	licenseCmd.AddCommand(licenseRevokeCmd)
	rootCmd.AddCommand(licenseCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadOffline(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newService() *license.Service {
	repo := repository.NewLicenseRepository(database.DB)
	return license.NewService(repo, cfg.Telegram.AdminUserID)
}

func issueLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	l, err := newService().Issue(context.Background(), ownerID, accountID)
	if err != nil {
		return fmt.Errorf("failed to issue license: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nLicense issued successfully!\n")
	fmt.Fprintf(out, "Account:  %s\n", l.AccountID)
	fmt.Fprintf(out, "Key:      %s\n", l.LicenseKey)
	fmt.Fprintf(out, "Expires:  %s\n", l.ExpiresOnString())
	fmt.Fprintf(out, "Status:   %s\n", l.Status)

	return nil
}

func listLicenses(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	licenses, err := newService().List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list licenses: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(licenses) == 0 {
		fmt.Fprintln(out, "No licenses found")
		return nil
	}

	fmt.Fprintf(out, "\nTotal licenses: %d\n\n", len(licenses))
	fmt.Fprintf(out, "%-15s %-32s %-12s %-10s %s\n", "Account", "Key", "Expires", "Status", "Owner")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")

	for _, l := range licenses {
		fmt.Fprintf(out, "%-15s %-32s %-12s %-10s %d\n",
			l.AccountID,
			l.LicenseKey,
			l.ExpiresOnString(),
			l.Status,
			l.OwnerID,
		)
	}

	return nil
}

func checkLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	d, err := newService().Describe(context.Background(), accountID)
	if err != nil {
		return fmt.Errorf("failed to check license: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), bot.FormatDescription(d))
	return nil
}

func revokeLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := newService().Revoke(context.Background(), accountID); err != nil {
		return fmt.Errorf("failed to revoke license: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), bot.ReplyDeactivated)
	return nil
}

func generateToken(cmd *cobra.Command, args []string) error {
	token, err := auth.GenerateAdminToken()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintln(cmd.ErrOrStderr(), "Set it as admin.token or LICENSE_ADMIN_TOKEN and send it in the X-Admin-Token header")
	return nil
}
