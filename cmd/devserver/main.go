// devserver is a stub of the Promoxa backend for local development: it issues
// tokens, serves the community REST endpoints from memory, and speaks the push
// channel framing so the client's websocket path can be exercised end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	chatlog "github.com/promoxa/community-client/internal/log"
	"github.com/promoxa/community-client/internal/proto"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("secret", "dev-secret", "HS256 signing secret")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := chatlog.New(*level)

	srv := newServer([]byte(*secret), logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", *addr).Msg("devserver listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("devserver exited")
	}
}

// record is the raw message shape the real backend produces.
type record struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
	IsAdminMessage bool   `json:"isAdminMessage"`
	IsPinned       bool   `json:"isPinned"`
	Reactions      []any  `json:"reactions"`
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type session struct {
	id      string
	conn    *websocket.Conn
	user    string
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]bool
}

func (s *session) subscribed(destination string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[destination]
}

func (s *session) write(ctx context.Context, frame proto.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(ctx, s.conn, frame)
}

type server struct {
	secret []byte
	log    *zerolog.Logger

	mu       sync.Mutex
	messages []record
	nextID   int64
	sessions map[string]*session
}

func newServer(secret []byte, logger *zerolog.Logger) *server {
	return &server{
		secret:   secret,
		log:      logger,
		nextID:   1,
		sessions: make(map[string]*session),
	}
}

func (s *server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/auth/login", s.handleLogin)

	api := r.Group("/api")
	api.GET("/community/messages", s.handleList)
	api.POST("/community/messages", s.handlePost)

	r.GET("/ws/community", s.handlePush)
	return r
}

func (s *server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	s.log.Info().Str("username", req.Username).Msg("issued token")
	c.JSON(http.StatusOK, gin.H{
		"token": signed,
		"user":  gin.H{"id": 1, "username": req.Username},
	})
}

func (s *server) handleList(c *gin.Context) {
	if _, ok := s.authenticate(c.GetHeader("Authorization")); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	s.mu.Lock()
	out := append([]record(nil), s.messages...)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"content": out})
}

func (s *server) handlePost(c *gin.Context) {
	user, ok := s.authenticate(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec := s.append(user, req.Content)
	s.broadcast(c.Request.Context(), rec, "")
	c.JSON(http.StatusCreated, rec)
}

func (s *server) handlePush(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn().Err(err).Msg("ws accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := c.Request.Context()

	var connect proto.Frame
	if err := wsjson.Read(ctx, conn, &connect); err != nil || connect.Type != proto.FrameConnect {
		_ = conn.Close(websocket.StatusProtocolError, "expected connect frame")
		return
	}
	user, ok := s.authenticate(connect.Headers[proto.AuthorizationHeader])
	if !ok {
		_ = wsjson.Write(ctx, conn, proto.Frame{
			Type:  proto.FrameError,
			Error: &proto.Error{Code: "unauthorized", Msg: "invalid token"},
		})
		_ = conn.Close(websocket.StatusNormalClosure, "unauthorized")
		return
	}

	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		user: user,
		subs: make(map[string]bool),
	}
	if err := sess.write(ctx, proto.Frame{Type: proto.FrameConnected}); err != nil {
		return
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()

	s.log.Info().Str("session_id", sess.id).Str("username", user).Msg("push session open")
	s.serveSession(ctx, sess)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func (s *server) serveSession(ctx context.Context, sess *session) {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, sess.conn, &frame); err != nil {
			return
		}

		switch frame.Type {
		case proto.FrameSubscribe:
			sess.mu.Lock()
			sess.subs[frame.Destination] = true
			sess.mu.Unlock()
		case proto.FrameSend:
			var body proto.SendBody
			if err := json.Unmarshal(frame.Body, &body); err != nil || strings.TrimSpace(body.Content) == "" {
				_ = sess.write(ctx, proto.Frame{
					Type:  proto.FrameError,
					Error: &proto.Error{Code: "bad_request", Msg: "invalid send body"},
				})
				continue
			}
			rec := s.append(sess.user, body.Content)
			// receipt to the sender, broadcast to everyone on the topic
			raw, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			_ = sess.write(ctx, proto.Frame{
				Type:        proto.FrameMessage,
				Destination: proto.DestCommunitySend,
				Body:        raw,
			})
			s.broadcast(ctx, rec, sess.id)
		default:
			s.log.Debug().Str("type", frame.Type).Msg("ignoring frame")
		}
	}
}

func (s *server) append(user, content string) record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := record{
		ID:        s.nextID,
		Username:  user,
		Content:   content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Reactions: []any{},
	}
	s.nextID++
	s.messages = append(s.messages, rec)
	return rec
}

// broadcast fans a record out to every session subscribed to the community
// topic, skipping the excluded session (the sender already got a receipt).
func (s *server) broadcast(ctx context.Context, rec record, exclude string) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	frame := proto.Frame{
		Type:        proto.FrameMessage,
		Destination: proto.TopicCommunity,
		Body:        raw,
	}

	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.id != exclude && sess.subscribed(proto.TopicCommunity) {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := sess.write(ctx, frame); err != nil {
			s.log.Debug().Err(err).Str("session_id", sess.id).Msg("broadcast write failed")
		}
	}
}

func (s *server) authenticate(authz string) (string, bool) {
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(authz, "Bearer ")

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Username == "" {
		return "", false
	}
	return c.Username, true
}
