package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"librarydesk/internal/loans"
	"librarydesk/internal/membership"
)

func (a *app) loansCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "loans", Short: "Inspect the loan ledger"}

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "List open loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			records, err := loans.NewRepo(a.db).ListOverdue(cmd.Context(), now)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no overdue loans")
				return nil
			}
			for _, r := range records {
				days := int(now.Sub(r.DueDate).Hours() / 24)
				fmt.Printf("record %d  member %d  %q  due %s  (%d days late)\n",
					r.ID, r.MemberID, r.BookTitle, r.DueDate.Format("2006-01-02"), days)
			}
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "list <membership-number>",
		Short: "Show a member's loans with their return status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := membership.NewRepo(a.db).GetByNumber(ctx, args[0])
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("member %s not found", args[0])
			}

			ml, err := loans.NewRepo(a.db).ListByMember(ctx, m.ID)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, r := range append(ml.Active, ml.Returned...) {
				fmt.Printf("record %d  %q  borrowed %s  due %s  %s\n",
					r.ID, r.BookTitle, r.BorrowDate.Format("2006-01-02"), r.DueDate.Format("2006-01-02"), r.ReturnStatus(now))
			}
			return nil
		},
	}

	cmd.AddCommand(overdue, history)
	return cmd
}
