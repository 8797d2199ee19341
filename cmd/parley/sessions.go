package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored interview sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as JSON",
	Long: `Export a session record as JSON. With --output pointing at a directory the
record is written there as interview-session-YYYY-MM-DD.json; "-" writes to
stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsExport,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	sessionsExportCmd.Flags().StringP("output", "o", "-", "output directory, or - for stdout")
}

// openStore opens the configured session store.
func openStore(cmd *cobra.Command) (store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.OpenStore(cmd.Context(), cfg.Storage)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTOPIC\tMESSAGES\tSCORE")
	for _, s := range sessions {
		score := "-"
		if s.Analysis != nil {
			score = fmt.Sprintf("%.0f", s.Analysis.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Topic, len(s.Utterances), score)
	}
	return w.Flush()
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", args[0], err)
	}
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	data, err := st.Export(ctx, id)
	if err != nil {
		return err
	}

	dir, _ := cmd.Flags().GetString("output")
	if dir == "-" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}

	s, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, store.ExportFilename(s))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, path)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(cmd.Context(), ids); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s).\n", len(ids))
	return nil
}
