package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qr-gate/internal/result"
	"qr-gate/internal/store"
)

var (
	exportFormat  string
	exportOut     string
	scanSource    string
	listLimit     int
	actionsAllFlg bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the scan log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, filename, err := result.ContentType(exportFormat)
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			data, err := result.NewExporter(st).Export(ctx, exportFormat)
			if err != nil {
				return err
			}
			out := exportOut
			if out == "" {
				out = filename
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			logger.Info("export written", zap.String("path", out), zap.Int("bytes", len(data)))
			return nil
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <qr-text>",
	Short: "Record a scan as if it came from the scanner page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			res, err := st.AddScan(ctx, args[0], scanSource)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scan %d recorded at %s (%s)\n", res.Scan.ID, res.Scan.ScannedAtSGT, res.Scan.Source)
			for _, ev := range res.Actions {
				fmt.Fprintf(out, "action %d: gate %s completed%s\n", ev.ID, ev.GateCode, redCardSuffix(ev))
			}
			return nil
		})
	},
}

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Manage gate door configurations",
}

var gatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured gates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			gates, err := st.ListGates(ctx, listLimit)
			if err != nil {
				return err
			}
			printGates(cmd.OutOrStdout(), gates)
			return nil
		})
	},
}

var gatesCreateCmd = &cobra.Command{
	Use:   "create <gate-code>",
	Short: "Create a gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			g, err := st.CreateGate(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gate %d created: %s\n", g.ID, g.GateCode)
			return nil
		})
	},
}

var gatesDoorsCmd = &cobra.Command{
	Use:   "doors <gate-id> <door-number>...",
	Short: "Set a gate's doors in scan order (2 to 6)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			g, err := st.SetGateDoors(ctx, id, args[1:])
			if err != nil {
				return err
			}
			printGates(cmd.OutOrStdout(), []store.Gate{g})
			return nil
		})
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Inspect and close action events",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List action events, open ones by default",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			events, err := st.ListActions(ctx, listLimit, actionsAllFlg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGATE\tDOORS\tCOMPLETED (SGT)\tCLOSED (SGT)\tRED")
			for _, ev := range events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					ev.ID, ev.GateCode, doorList(ev.Doors), ev.CompletedAtSGT, dash(ev.ClosedAtSGT), redCardCell(ev))
			}
			return tw.Flush()
		})
	},
}

var actionsCloseCmd = &cobra.Command{
	Use:   "close <action-id>",
	Short: "Close an open action event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			ok, err := st.CloseAction(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("action event %d not found or already closed", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "action %d closed\n", id)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "export format: "+strings.Join(result.Formats, "|"))
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout (default qr_scans.<format>)")

	scanCmd.Flags().StringVar(&scanSource, "source", "MANUAL", "scan source label")

	gatesListCmd.Flags().IntVar(&listLimit, "limit", 200, "maximum gates to list")
	gatesCmd.AddCommand(gatesListCmd, gatesCreateCmd, gatesDoorsCmd)

	actionsListCmd.Flags().IntVar(&listLimit, "limit", 200, "maximum events to list")
	actionsListCmd.Flags().BoolVar(&actionsAllFlg, "all", false, "include closed events")
	actionsCmd.AddCommand(actionsListCmd, actionsCloseCmd)

	configCmd.AddCommand(configInitCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile()
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
		return nil
	},
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printGates(w io.Writer, gates []store.Gate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGATE\tDOORS\tCREATED (SGT)")
	for _, g := range gates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", g.ID, g.GateCode, doorList(g.Doors), g.CreatedAtSGT)
	}
	_ = tw.Flush()
}

func doorList(doors []store.Door) string {
	if len(doors) == 0 {
		return "-"
	}
	parts := make([]string, len(doors))
	for i, d := range doors {
		parts[i] = d.DoorNumber
	}
	return strings.Join(parts, " > ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func redCardCell(ev store.ActionEvent) string {
	if !ev.IsRedCard {
		return "-"
	}
	if ev.Door2ElapsedSeconds != nil {
		return fmt.Sprintf("yes (%ds)", *ev.Door2ElapsedSeconds)
	}
	return "yes"
}

func redCardSuffix(ev store.ActionEvent) string {
	if !ev.IsRedCard {
		return ""
	}
	return ", red card: " + redCardCell(ev)
}
