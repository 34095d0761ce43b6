package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"librarydesk/pkg/models"
)

const defaultBaseURL = "http://localhost:8080"

type authResponse struct {
	Token string `json:"token"`
}

type bookListResponse struct {
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Items  []models.Book `json:"items"`
}

func main() {
	global := flag.NewFlagSet("librarydesk", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	rest := []string{}
	if len(args) > 1 {
		sub = args[1]
		rest = args[2:]
	}

	client := &http.Client{Timeout: 15 * time.Second}

	switch cmd {
	case "auth":
		handleAuth(ctx, client, *baseURL, *tokenPath, sub, rest)
	case "books":
		handleBooks(ctx, client, *baseURL, sub, rest)
	case "member":
		handleMember(ctx, client, *baseURL, *tokenPath, sub, rest)
	case "loans":
		handleLoans(ctx, client, *baseURL, *tokenPath, sub, rest)
	case "feed":
		handleFeed(*baseURL, *tokenPath, sub, rest)
	case "export":
		handleExport(ctx, client, *baseURL, sub, rest)
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	switch sub {
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *email == "" || *password == "" {
			log.Fatal("email and password are required")
		}

		payload := map[string]string{"email": *email, "password": *password}
		var resp authResponse
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/login", "", payload, &resp); err != nil {
			log.Fatalf("login failed: %v", err)
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Println("✅ logged in")
	case "register":
		fs := flag.NewFlagSet("auth register", flag.ExitOnError)
		username := fs.String("username", "", "username")
		email := fs.String("email", "", "email address")
		first := fs.String("first-name", "", "first name")
		last := fs.String("last-name", "", "last name")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *username == "" || *email == "" || *password == "" {
			log.Fatal("username, email, and password are required")
		}

		payload := map[string]string{
			"username":   *username,
			"email":      *email,
			"first_name": *first,
			"last_name":  *last,
			"password":   *password,
		}
		var resp authResponse
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/register", "", payload, &resp); err != nil {
			log.Fatalf("register failed: %v", err)
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Println("✅ registered and logged in")
	case "logout":
		if token, err := readToken(tokenPath); err == nil && token != "" {
			// revoke server side too; a stale token file is still cleared
			if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/logout", token, nil, nil); err != nil {
				log.Printf("server logout: %v", err)
			}
		}
		if err := clearToken(tokenPath); err != nil {
			log.Fatalf("logout failed: %v", err)
		}
		fmt.Println("✅ logged out")
	default:
		log.Fatal("usage: librarydesk auth <login|register|logout>")
	}
}

func handleBooks(ctx context.Context, client *http.Client, baseURL, sub string, args []string) {
	switch sub {
	case "search":
		fs := flag.NewFlagSet("books search", flag.ExitOnError)
		query := fs.String("q", "", "title, author or ISBN")
		category := fs.Int64("category", 0, "category id")
		status := fs.String("status", "", "available, borrowed or maintenance")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		u, err := url.Parse(baseURL + "/books")
		if err != nil {
			log.Fatalf("invalid base url: %v", err)
		}
		qv := u.Query()
		if *query != "" {
			qv.Set("q", *query)
		}
		if *category > 0 {
			qv.Set("category", fmt.Sprintf("%d", *category))
		}
		if *status != "" {
			qv.Set("status", *status)
		}
		qv.Set("limit", fmt.Sprintf("%d", *limit))
		qv.Set("offset", fmt.Sprintf("%d", *offset))
		u.RawQuery = qv.Encode()

		var resp bookListResponse
		if err := doJSON(ctx, client, http.MethodGet, u.String(), "", nil, &resp); err != nil {
			log.Fatalf("search failed: %v", err)
		}
		printJSON(resp)
	case "show":
		fs := flag.NewFlagSet("books show", flag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal("book id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, fmt.Sprintf("%s/books/%d", baseURL, *id), "", nil, &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: librarydesk books <search|show>")
	}
}

func handleMember(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "join":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/users/members", token, map[string]any{}, &resp); err != nil {
			log.Fatalf("join failed: %v", err)
		}
		printJSON(resp)
	case "show":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/users/members/me", token, nil, &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: librarydesk member <join|show>")
	}
}

func handleLoans(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)

	var path string
	switch sub {
	case "list":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/users/my-books", token, nil, &resp); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		printJSON(resp)
		return
	case "borrow":
		fs := flag.NewFlagSet("loans borrow", flag.ExitOnError)
		bookID := fs.Int64("book", 0, "book id")
		_ = fs.Parse(args)
		if *bookID <= 0 {
			log.Fatal("book id is required")
		}
		path = fmt.Sprintf("/users/borrow/%d", *bookID)
	case "return", "extend":
		fs := flag.NewFlagSet("loans "+sub, flag.ExitOnError)
		recordID := fs.Int64("record", 0, "borrow record id")
		_ = fs.Parse(args)
		if *recordID <= 0 {
			log.Fatal("record id is required")
		}
		path = fmt.Sprintf("/users/%s/%d", sub, *recordID)
	default:
		log.Fatal("usage: librarydesk loans <list|borrow|return|extend>")
	}

	var resp map[string]any
	if err := doJSON(ctx, client, http.MethodPost, baseURL+path, token, nil, &resp); err != nil {
		log.Fatalf("%s failed: %v", sub, err)
	}
	printJSON(resp)
}

func handleFeed(baseURL, tokenPath, sub string, args []string) {
	switch sub {
	case "listen":
		fs := flag.NewFlagSet("feed listen", flag.ExitOnError)
		addr := fs.String("addr", "127.0.0.1:7070", "TCP loan feed address")
		pretty := fs.Bool("pretty", true, "pretty print JSON events")
		_ = fs.Parse(args)
		for {
			if err := runFeedTCP(*addr, *pretty); err != nil {
				log.Printf("[feed] disconnected: %v", err)
			}
			time.Sleep(1 * time.Second)
		}
	case "subscribe":
		fs := flag.NewFlagSet("feed subscribe", flag.ExitOnError)
		wsURL := fs.String("ws", "", "WebSocket URL (defaults to /ws on API host)")
		_ = fs.Parse(args)

		endpoint := *wsURL
		if endpoint == "" {
			var err error
			endpoint, err = websocketURL(baseURL, "/ws")
			if err != nil {
				log.Fatalf("ws url: %v", err)
			}
		}
		if err := runWebSocket(endpoint); err != nil {
			log.Fatalf("subscribe failed: %v", err)
		}
	case "notices":
		fs := flag.NewFlagSet("feed notices", flag.ExitOnError)
		addr := fs.String("addr", "127.0.0.1:9091", "UDP notice server address")
		_ = fs.Parse(args)
		if err := runNotices(*addr, mustToken(tokenPath)); err != nil {
			log.Fatalf("notices failed: %v", err)
		}
	default:
		log.Fatal("usage: librarydesk feed <listen|subscribe|notices>")
	}
}

func handleExport(ctx context.Context, client *http.Client, baseURL, sub string, args []string) {
	switch sub {
	case "json", "csv":
		fs := flag.NewFlagSet("export "+sub, flag.ExitOnError)
		out := fs.String("out", "data/books."+sub, "output path")
		limit := fs.Int("limit", 500, "max books to export")
		_ = fs.Parse(args)

		items, err := fetchBooks(ctx, client, baseURL, *limit)
		if err != nil {
			log.Fatalf("export %s failed: %v", sub, err)
		}
		write := writeJSON
		if sub == "csv" {
			write = writeCSV
		}
		if err := write(*out, items); err != nil {
			log.Fatalf("write %s failed: %v", sub, err)
		}
		log.Printf("✅ exported %d books to %s", len(items), *out)
	default:
		log.Fatal("usage: librarydesk export <json|csv>")
	}
}

func printUsage() {
	fmt.Println("librarydesk <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  auth login|register|logout")
	fmt.Println("  books search|show")
	fmt.Println("  member join|show")
	fmt.Println("  loans list|borrow|return|extend")
	fmt.Println("  feed listen|subscribe|notices")
	fmt.Println("  export json|csv")
}
