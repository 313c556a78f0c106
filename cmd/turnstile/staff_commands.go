package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"turnstile/internal/api"
)

func newStaffCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Enrolled staff directory",
	}
	cmd.AddCommand(newStaffListCommand(ctx))
	return cmd
}

func newStaffListCommand(cctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enrolled staff members",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			members, err := st.AllStaff(cmd.Context(), all)
			if err != nil {
				return err
			}
			converted := api.FromStaffMembers(members)

			if asJSON {
				return writeJSON(cmd, api.StaffListResponse{Staff: converted})
			}

			stdout := cmd.OutOrStdout()
			if len(converted) == 0 {
				fmt.Fprintln(stdout, "No staff enrolled")
				return nil
			}

			rows := make([][]string, 0, len(converted))
			for _, member := range converted {
				rows = append(rows, []string{
					member.StaffID,
					member.Name,
					member.Department,
					member.EmployeeID,
					member.AddedAt,
					yesNo(member.Active),
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Staff", "Name", "Department", "Employee", "Added", "Active"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include deactivated staff")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
