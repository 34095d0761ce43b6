package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"librarydesk/internal/catalog"
	"librarydesk/pkg/models"
)

func (a *app) categoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "category", Short: "Manage categories"}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.NewRepo(a.db).CreateCategory(cmd.Context(), catalog.NewCategory{
				Name:        args[0],
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Printf("added category %d %q\n", c.ID, c.Name)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "category description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories with book counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := catalog.NewRepo(a.db).ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Printf("%4d  %-30s %d books\n", c.ID, c.Name, c.BookCount)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (a *app) authorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "author", Short: "Manage authors"}

	var email, bio string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := catalog.NewAuthor{Name: args[0], Bio: bio}
			if email != "" {
				in.Email = &email
			}
			au, err := catalog.NewRepo(a.db).CreateAuthor(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("added author %d %q\n", au.ID, au.Name)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "contact email (unique)")
	add.Flags().StringVar(&bio, "bio", "", "short biography")

	cmd.AddCommand(add)
	return cmd
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage books and their stock"}

	var (
		isbn        string
		categoryID  int64
		authorIDs   []int64
		copies      int
		description string
	)
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a book with all copies on the shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := catalog.NewBook{
				Title:       args[0],
				ISBN:        isbn,
				AuthorIDs:   authorIDs,
				Description: description,
				TotalCopies: copies,
			}
			if categoryID > 0 {
				in.CategoryID = &categoryID
			}
			b, err := catalog.NewRepo(a.db).CreateBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			printBook(b)
			return nil
		},
	}
	add.Flags().StringVar(&isbn, "isbn", "", "ISBN, at most 13 characters")
	add.Flags().Int64Var(&categoryID, "category", 0, "category id")
	add.Flags().Int64SliceVar(&authorIDs, "author", nil, "author id, repeatable")
	add.Flags().IntVar(&copies, "copies", 1, "number of owned copies")
	add.Flags().StringVar(&description, "description", "", "book description")
	_ = add.MarkFlagRequired("isbn")

	status := &cobra.Command{
		Use:   "status <book-id> <available|borrowed|maintenance>",
		Short: "Override a book's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := catalog.NewRepo(a.db).SetStatus(cmd.Context(), id, strings.ToLower(args[1]))
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("book %d not found", id)
			}
			printBook(b)
			return nil
		},
	}

	setCopies := &cobra.Command{
		Use:   "copies <book-id> <total>",
		Short: "Change the number of owned copies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			total, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid total %q", args[1])
			}
			b, err := catalog.NewRepo(a.db).SetTotalCopies(cmd.Context(), id, total)
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("book %d not found", id)
			}
			printBook(b)
			return nil
		},
	}

	cmd.AddCommand(add, status, setCopies)
	return cmd
}

func printBook(b *models.Book) {
	fmt.Printf("book %d %q isbn=%s status=%s copies=%d/%d\n",
		b.ID, b.Title, b.ISBN, b.Status, b.AvailableCopies, b.TotalCopies)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
