package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"librarydesk/internal/auth"
	"librarydesk/internal/membership"
	"librarydesk/pkg/models"
)

func (a *app) memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage library members"}

	var (
		email, first, last string
		number, status     string
	)
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a login and its member record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			username := strings.TrimSpace(args[0])

			prompt := a.password
			if prompt == nil {
				prompt = readPassword
			}
			password, err := prompt(fmt.Sprintf("Password for %s: ", username))
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			u := auth.User{
				ID:           uuid.NewString(),
				Username:     username,
				Email:        strings.ToLower(strings.TrimSpace(email)),
				FirstName:    strings.TrimSpace(first),
				LastName:     strings.TrimSpace(last),
				PasswordHash: string(hash),
			}
			m, err := membership.NewRepo(a.db).CreateWithUser(ctx, u, membership.NewMember{
				MembershipNumber: number,
				MembershipStatus: status,
			})
			if err != nil {
				return err
			}
			printMember(m)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&first, "first-name", "", "first name")
	add.Flags().StringVar(&last, "last-name", "", "last name")
	add.Flags().StringVar(&number, "number", "", "membership number (generated when empty)")
	add.Flags().StringVar(&status, "status", models.MembershipRegular, "regular, premium or suspended")
	_ = add.MarkFlagRequired("email")

	setStatus := &cobra.Command{
		Use:   "status <membership-number> <regular|premium|suspended>",
		Short: "Change a member's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := membership.NewRepo(a.db)
			m, err := repo.GetByNumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("member %s not found", args[0])
			}
			if m, err = repo.SetStatus(cmd.Context(), m.ID, strings.ToLower(args[1])); err != nil {
				return err
			}
			printMember(m)
			return nil
		},
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List members, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := membership.NewRepo(a.db).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for i := range members {
				printMember(&members[i])
			}
			return nil
		},
	}
	list.Flags().StringVar(&filter, "status", "", "only members with this status")

	cmd.AddCommand(add, setStatus, list)
	return cmd
}

func printMember(m *models.Member) {
	fmt.Printf("member %d %s %-9s %s joined %s\n",
		m.ID, m.MembershipNumber, m.MembershipStatus, m.FullName, m.DateJoined.Format("2006-01-02"))
}

// readPassword masks input on a terminal and reads one line otherwise.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
