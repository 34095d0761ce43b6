// Command librarian is the admin tool for record keeping. It talks to the
// database directly, so run it on the host that owns the library file.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"librarydesk/pkg/database"
	"librarydesk/pkg/utils"
)

type app struct {
	dbPath string
	db     *sql.DB
	// password prompts for a new member's password; nil reads stdin.
	password func(prompt string) (string, error)
}

func main() {
	utils.LoadEnv()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Manage the librarydesk catalog, members and loans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := database.DefaultConfig()
			if a.dbPath != "" {
				cfg.Path = a.dbPath
			}
			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				_ = db.Close()
				return fmt.Errorf("migrate: %w", err)
			}
			a.db = db
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (default $LIBRARYDESK_DB_PATH or ~/.librarydesk/library.db)")

	root.AddCommand(
		a.categoryCmd(),
		a.authorCmd(),
		a.bookCmd(),
		a.memberCmd(),
		a.loansCmd(),
	)
	return root
}
