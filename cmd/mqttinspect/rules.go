package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

func newRulesCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage saved filter rules",
	}

	var force bool
	add := &cobra.Command{
		Use:   "add <name> <rule>",
		Short: "Save a rule under a name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRules(cmd.Context(), global, func(st *ruleStores) error {
				saved, err := st.rules.Save(cmd.Context(), args[0], strings.Join(args[1:], " "), force)
				if err != nil {
					return err
				}
				st.journal(cmd.Context(), audit.ActionRuleSave, saved.Name, saved.Query)
				fmt.Fprintf(cmd.OutOrStdout(), "saved %q: %s\n", saved.Name, saved.Query)
				return nil
			})
		},
	}
	add.Flags().BoolVarP(&force, "force", "f", false, "replace an existing rule")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRules(cmd.Context(), global, func(st *ruleStores) error {
				saved, err := st.rules.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(saved) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no saved rules")
					return nil
				}
				for _, r := range saved {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", r.Name, r.Query)
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRules(cmd.Context(), global, func(st *ruleStores) error {
				if err := st.rules.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				st.journal(cmd.Context(), audit.ActionRuleDelete, args[0], "")
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show database location and schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), global, func(db *database.DB) error {
				applied, pending, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "database: %s\n", db.Path())
				for _, m := range applied {
					fmt.Fprintf(out, "applied:  %s\n", m.Version)
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending:  %s (%s)\n", m.Version, m.Name)
				}
				return nil
			})
		},
	}

	var (
		limit  int
		action string
	)
	history := &cobra.Command{
		Use:   "log",
		Short: "Show recent filter and rule activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRules(cmd.Context(), global, func(st *ruleStores) error {
				entries, err := st.activity.List(cmd.Context(), audit.Filter{Action: action, Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "no activity recorded")
					return nil
				}
				for i := len(entries) - 1; i >= 0; i-- {
					e := entries[i]
					fmt.Fprintf(out, "%s %-15s %-6s %s %s\n",
						e.CreatedAt.Local().Format(time.DateTime), e.Action, e.Source, e.Subject, e.Detail)
				}
				return nil
			})
		},
	}
	history.Flags().IntVarP(&limit, "limit", "n", audit.DefaultLimit, "number of entries to show")
	history.Flags().StringVar(&action, "action", "", "only show one action, e.g. rule.save")

	cmd.AddCommand(add, list, remove, history, status, newMigrateCmd(global))
	return cmd
}

// newMigrateCmd steps the database schema. Every other rules command
// migrates up on open, so these open the database as it is.
func newMigrateCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), global, func(db *database.DB) error {
				n, err := db.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), global, func(db *database.DB) error {
				m, err := db.MigrateDown(cmd.Context())
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reverted %s (%s)\n", m.Version, m.Name)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down)
	return cmd
}

// ruleStores is the database-backed state the rules commands work on.
type ruleStores struct {
	rules    *rule.SQLiteRepository
	activity *audit.SQLiteRepository
	log      *logging.Logger
}

// journal records a CLI change to saved rules. Failures are logged only.
func (st *ruleStores) journal(ctx context.Context, action, subject, detail string) {
	e := &audit.Entry{Action: action, Subject: subject, Detail: detail, Source: audit.SourceCLI}
	if err := st.activity.Record(ctx, e); err != nil {
		st.log.Warn("recording activity failed", "action", action, "error", err)
	}
}

// withDatabase opens the configured database without migrating it.
func withDatabase(ctx context.Context, global *globalFlags, fn func(*database.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // short CLI session

	return fn(db)
}

// withRules opens and migrates the configured database for the duration
// of fn.
func withRules(ctx context.Context, global *globalFlags, fn func(*ruleStores) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-mostly CLI session

	return fn(&ruleStores{
		rules:    rule.NewSQLiteRepository(db.DB),
		activity: audit.NewSQLiteRepository(db.DB),
		log:      log,
	})
}
