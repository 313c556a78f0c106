package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"turnstile/internal/api"
	"turnstile/internal/faceclient"
	"turnstile/internal/ipc"
	"turnstile/internal/logging"
	"turnstile/internal/store"
	"turnstile/internal/vision"
)

func newUnknownCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unknown",
		Short: "Review unknown-person sightings",
	}
	cmd.AddCommand(newUnknownListCommand(ctx))
	cmd.AddCommand(newUnknownShowCommand(ctx))
	cmd.AddCommand(newUnknownRecheckCommand(ctx))
	return cmd
}

func newUnknownListCommand(cctx *commandContext) *cobra.Command {
	var date string
	var all bool
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unknown sightings (unprocessed by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDateFlag(date, "")
			if err != nil {
				return err
			}

			entries, err := loadUnknownEntries(cmd.Context(), cctx, day, !all, limit)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, api.UnknownListResponse{Entries: entries})
			}

			stdout := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No unknown sightings recorded")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(entry.ID, 10),
					entry.Date,
					entry.Time,
					entry.EntryType,
					entry.Reason,
					fmt.Sprintf("%.2f", entry.FaceConfidence),
					yesNo(entry.Processed),
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"ID", "Date", "Time", "Type", "Reason", "Face conf", "Processed"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Restrict to one day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&all, "all", false, "Include processed sightings")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list (0 for no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newUnknownShowCommand(cctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one unknown sighting in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}

			entry, err := loadUnknownEntry(cmd.Context(), cctx, id)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, entry)
			}

			stdout := cmd.OutOrStdout()
			printField := func(label, value string) {
				if strings.TrimSpace(value) == "" {
					return
				}
				fmt.Fprintf(stdout, "%-22s %s\n", label+":", value)
			}

			printField("ID", strconv.FormatInt(entry.ID, 10))
			printField("Date", entry.Date)
			printField("Time", entry.Time)
			printField("Detected at", entry.DetectionTime)
			printField("Type", entry.EntryType)
			printField("Track", entry.TrackID)
			printField("Mode", entry.Mode)
			printField("Reason", entry.Reason)
			printField("Face detected", yesNo(entry.FaceDetected))
			printField("Face confidence", fmt.Sprintf("%.2f", entry.FaceConfidence))
			printField("Match confidence", fmt.Sprintf("%.2f", entry.RecognitionConfidence))
			printField("Face box", formatRect(entry.FaceBox))
			printField("Person box", formatRect(entry.PersonBox))
			printField("Processed", yesNo(entry.Processed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of fields")
	return cmd
}

func newUnknownRecheckCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <id>",
		Short: "Re-identify a sighting against the staff gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}

			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := api.RecheckStaff(cmd.Context(), api.RecheckStaffRequest{
				Config:  cfg,
				Store:   st,
				Faces:   faceclient.New(cfg),
				Logger:  logging.NewNop(),
				EntryID: id,
			})
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if !result.Success {
				message := strings.TrimSpace(result.Message)
				if message == "" {
					message = "no staff match"
				}
				fmt.Fprintf(stdout, "Entry %d: %s\n", id, message)
				return nil
			}

			fmt.Fprintf(stdout, "Entry %d matched %s (%s) at %.2f\n",
				id, result.StaffName, result.StaffID, result.RecognitionConfidence)
			switch {
			case result.AlreadyCaptured:
				fmt.Fprintln(stdout, "Attendance already recorded near the sighting time")
			case result.CheckInCreated:
				fmt.Fprintf(stdout, "Backfilled %s at %s\n", result.SystemMode, result.LastCheckTime)
			}
			fmt.Fprintln(stdout, "Entry marked processed")
			return nil
		},
	}
}

func loadUnknownEntries(ctx context.Context, cctx *commandContext, date string, onlyUnprocessed bool, limit int) ([]api.UnknownEntry, error) {
	if client := cctx.dialOptional(); client != nil {
		defer client.Close()
		resp, err := client.UnknownList(ipc.UnknownListRequest{
			Date:            date,
			OnlyUnprocessed: onlyUnprocessed,
			Limit:           limit,
		})
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, errors.New("unknown list response missing")
		}
		return resp.Entries, nil
	}

	st, err := cctx.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	entries, err := st.UnknownEntries(ctx, store.UnknownQuery{
		Date:            date,
		OnlyUnprocessed: onlyUnprocessed,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}
	return api.FromUnknownEntries(entries), nil
}

func loadUnknownEntry(ctx context.Context, cctx *commandContext, id int64) (api.UnknownEntry, error) {
	if client := cctx.dialOptional(); client != nil {
		defer client.Close()
		resp, err := client.UnknownDescribe(id)
		if err != nil {
			return api.UnknownEntry{}, err
		}
		if resp == nil {
			return api.UnknownEntry{}, errors.New("unknown entry response missing")
		}
		return resp.Entry, nil
	}

	st, err := cctx.openStore()
	if err != nil {
		return api.UnknownEntry{}, err
	}
	defer st.Close()

	entry, err := st.UnknownEntryByID(ctx, id)
	if err != nil {
		return api.UnknownEntry{}, err
	}
	if entry == nil {
		return api.UnknownEntry{}, fmt.Errorf("unknown entry %d not found", id)
	}
	return api.FromUnknownEntry(*entry), nil
}

func parseEntryID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}

func formatRect(rect *vision.Rect) string {
	if rect == nil {
		return ""
	}
	return fmt.Sprintf("(%d,%d)-(%d,%d)", rect.X0, rect.Y0, rect.X1, rect.Y1)
}
