package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"librarydesk/internal/auth"
	"librarydesk/internal/catalog"
	"librarydesk/internal/loans"
	"librarydesk/internal/membership"
	"librarydesk/internal/notify"
	synchub "librarydesk/internal/sync"
	"librarydesk/pkg/database"
	"librarydesk/pkg/utils"
)

func main() {
	utils.LoadEnv()

	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	srvCfg := utils.LoadServerConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// loan events go out on both the websocket and the raw TCP feed
	hub := synchub.NewHub()
	router.GET("/ws", synchub.WSHandler(hub, srvCfg.AllowedOrigins))
	tcpSrv := synchub.NewServer(srvCfg.SyncAddr, hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authRepo := auth.NewRepo(db)
	auth.NewHandler(authRepo, tokenSvc).RegisterRoutes(router.Group("/auth"))

	// Loans
	loanCfg := utils.LoadLoanConfig()
	loanSvc := loans.NewService(db, loans.SystemClock{}, loans.Policy{
		LoanPeriod:        loanCfg.LoanPeriod,
		ExtensionPeriod:   loanCfg.ExtensionPeriod,
		MaintenanceSticky: loanCfg.MaintenanceSticky,
	}, logger)
	ledger := loans.NewRepo(db)

	// Catalog (public, caller-aware when a token is sent)
	catalogRepo := catalog.NewRepo(db)
	public := router.Group("/")
	public.Use(auth.OptionalAuth(tokenSvc, authRepo))
	catalog.NewHandler(catalogRepo, ledger).RegisterRoutes(public)

	// Protected routes
	protected := router.Group("/users")
	protected.Use(auth.AuthMiddleware(tokenSvc, authRepo))

	protected.GET("/me", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"email":    claims.Email,
		})
	})

	// per-member notices over UDP
	notifySrv := notify.NewServer(srvCfg.NotifyAddr, nil,
		auth.Verifier{Tokens: tokenSvc, Repo: authRepo},
		log.New(os.Stderr, "[notify] ", log.LstdFlags))
	if err := notifySrv.Listen(); err != nil {
		log.Fatalf("notify listen failed: %v", err)
	}

	membership.NewHandler(membership.NewRepo(db)).RegisterRoutes(protected)
	loanHandler := loans.NewHandler(loanSvc, ledger, hub)
	loanHandler.Notices = notifySrv
	loanHandler.RegisterRoutes(protected)

	httpSrv := &http.Server{
		Addr:    srvCfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	reminderCtx, stopReminders := context.WithCancel(context.Background())
	defer stopReminders()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notifySrv.Serve(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		notifySrv.RunReminders(reminderCtx, ledger, srvCfg.ReminderInterval, srvCfg.ReminderWindow)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", srvCfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := tcpSrv.Close(); err != nil {
		log.Printf("tcp shutdown error: %v", err)
	}
	if err := notifySrv.Close(); err != nil {
		log.Printf("udp shutdown error: %v", err)
	}
	stopReminders()

	wg.Wait()
	log.Println("servers stopped")
}
