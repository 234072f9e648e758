package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/portal/internal/config"
	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			result, err := store.Migrate(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

type adminCreateOptions struct {
	username string
	email    string
	password string
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var opts adminCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("PORTAL_ADMIN_PASSWORD")
			}
			if opts.password == "" {
				return withCode(exitUsage, errors.New("--password or PORTAL_ADMIN_PASSWORD is required"))
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			identity, err := a.Service.ProvisionAdmin(cmd.Context(), opts.username, opts.email, opts.password)
			if errors.Is(err, core.ErrUsernameTaken) {
				return withCode(exitValidation, err)
			}
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q with id %d\n", identity.Username, identity.ID)
			return nil
		},
	}
	create.Flags().StringVar(&opts.username, "username", "", "Login name (required)")
	create.Flags().StringVar(&opts.email, "email", "", "Email address (required)")
	create.Flags().StringVar(&opts.password, "password", "", "Password (default: $PORTAL_ADMIN_PASSWORD)")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo admin and student accounts",
		Long: "Creates admin/" + core.DemoAdminPassword + " and " + core.DemoStudentUsername + "/" + core.DemoStudentPassword +
			" with sample results. Existing accounts are left alone. Never run this against production data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.Service.SeedDemo(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d demo accounts\n", created)
			return nil
		},
	}
}

type importOptions struct {
	file  string
	apply bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile a results CSV into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file with student_id, student_name, subject, marks (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply changes to DB (default is dry-run)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, opts importOptions) error {
	f, err := os.Open(opts.file)
	if err != nil {
		return withCode(exitUsage, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return withCode(exitUsage, err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Service.ImportBatch(cmd.Context(), filepath.Base(opts.file), f, info.Size(),
		core.ImportOptions{DryRun: !opts.apply})
	switch {
	case errors.Is(err, core.ErrMalformedBatch), errors.Is(err, core.ErrEmptyFile), errors.Is(err, core.ErrFileTooLarge):
		return withCode(exitValidation, err)
	case err != nil:
		return withCode(exitDB, fmt.Errorf("%s: %w", core.FormatUserError(err), err))
	}

	printSummary(cmd, summary)
	if !opts.apply {
		fmt.Fprintln(cmd.OutOrStdout(), "dry run: nothing was written; rerun with --apply to commit")
	}
	return nil
}

func printSummary(cmd *cobra.Command, s *core.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, s.Message())
	fmt.Fprintf(out, "batch %s: %d processed, %d errors, %d scores created, %d updated\n",
		s.BatchID, s.Processed, s.Errors, len(s.CreatedScores), s.UpdatedScores)
	for _, c := range s.CreatedStudents {
		fmt.Fprintf(out, "  new student %d: %s\n", c.ID, c.DisplayName)
	}
	for _, r := range s.Remaps {
		fmt.Fprintf(out, "  student id %d taken, assigned %d\n", r.Claimed, r.Assigned)
	}
	for _, e := range s.RowErrors {
		fmt.Fprintf(out, "  line %d: %s\n", e.Line, e.Reason)
	}
}
