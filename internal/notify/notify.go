// Package notify pushes loan notices to members over UDP. A member's client
// registers its address with a JSON datagram carrying its login token; the
// server then sends that member their own loan events and due-date reminders.
package notify

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"librarydesk/internal/auth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	RegisterMessageType = "register"
	ReminderMessageType = "due_reminder"
)

// RegisterMessage binds the sender's address to the user the token names.
type RegisterMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// TokenVerifier resolves a login token to its claims. auth.Verifier is the
// production implementation.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Reminder is one open loan that is close to, or past, its due date.
type Reminder struct {
	UserID    string    `json:"-"`
	RecordID  int64     `json:"record_id"`
	BookTitle string    `json:"book_title"`
	DueDate   time.Time `json:"due_date"`
	Overdue   bool      `json:"overdue"`
}

type reminderMessage struct {
	Type string `json:"type"`
	Reminder
}

// DueSource lists open loans due before now+within, overdue ones included.
type DueSource interface {
	DueReminders(ctx context.Context, now time.Time, within time.Duration) ([]Reminder, error)
}

type Client struct {
	UserID string
	Addr   *net.UDPAddr
}

type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(userID string, addr *net.UDPAddr) {
	if userID == "" || addr == nil {
		return
	}
	r.mu.Lock()
	r.clients[userID] = Client{UserID: userID, Addr: addr}
	r.mu.Unlock()
}

func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.clients, userID)
	r.mu.Unlock()
}

func (r *Registry) Lookup(userID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

type Server struct {
	addr     string
	registry *Registry
	tokens   TokenVerifier
	logger   *log.Logger
	conn     *net.UDPConn
}

// NewServer builds a notify server. Without a verifier every registration
// is refused.
func NewServer(addr string, registry *Registry, tokens TokenVerifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Server{addr: addr, registry: registry, tokens: tokens, logger: logger}
}

// Listen binds the UDP socket. Call it before Serve and before any goroutine
// sends notices.
func (s *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.logger.Printf("UDP notify server listening on %s", conn.LocalAddr())
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve reads register datagrams until the socket is closed.
func (s *Server) Serve() error {
	if s.conn == nil {
		return errors.New("notify: Serve called before Listen")
	}

	buffer := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		msg, err := parseRegisterMessage(buffer[:n])
		if err != nil {
			s.logger.Printf("invalid UDP message from %s: %v", addr, err)
			continue
		}
		if msg.Type != RegisterMessageType {
			continue
		}
		userID, err := s.authenticate(msg.Token)
		if err != nil {
			s.logger.Printf("rejected UDP registration from %s: %v", addr, err)
			continue
		}
		s.registry.Register(userID, addr)
		s.logger.Printf("registered UDP client %s (%s)", userID, addr)
	}
}

func (s *Server) authenticate(token string) (string, error) {
	if s.tokens == nil {
		return "", errors.New("registration disabled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", errors.New("token has no user")
	}
	return claims.UserID, nil
}

func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// NotifyUser sends v as one JSON datagram to userID when they registered.
func (s *Server) NotifyUser(userID string, v any) {
	if s.conn == nil {
		return
	}
	client, ok := s.registry.Lookup(userID)
	if !ok {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("failed to marshal notice: %v", err)
		return
	}
	s.sendWithRetry(client, payload)
}

// SendReminders notifies every registered member with a loan from src that
// is due within the window. It returns how many reminders were sent.
func (s *Server) SendReminders(ctx context.Context, src DueSource, now time.Time, within time.Duration) (int, error) {
	due, err := src.DueReminders(ctx, now, within)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		if _, ok := s.registry.Lookup(r.UserID); !ok {
			continue
		}
		s.NotifyUser(r.UserID, reminderMessage{Type: ReminderMessageType, Reminder: r})
		sent++
	}
	return sent, nil
}

// RunReminders calls SendReminders every interval until ctx is done.
func (s *Server) RunReminders(ctx context.Context, src DueSource, interval, within time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.SendReminders(ctx, src, now, within)
			if err != nil {
				s.logger.Printf("reminder sweep failed: %v", err)
				continue
			}
			if n > 0 {
				s.logger.Printf("sent %d due-date reminders", n)
			}
		}
	}
}

func (s *Server) sendWithRetry(client Client, payload []byte) {
	if err := s.sendOnce(client, payload); err == nil {
		return
	}
	if err := s.sendOnce(client, payload); err != nil {
		s.logger.Printf("failed to notify user %s at %s: %v", client.UserID, client.Addr, err)
		s.registry.Remove(client.UserID)
	}
}

func (s *Server) sendOnce(client Client, payload []byte) error {
	if client.Addr == nil {
		return errors.New("missing client address")
	}
	_, err := s.conn.WriteToUDP(payload, client.Addr)
	return err
}

func parseRegisterMessage(data []byte) (RegisterMessage, error) {
	var msg RegisterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Token == "" || msg.Type == "" {
		return msg, errors.New("missing required fields")
	}
	return msg, nil
}
