package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
)

const (
	CookieName = "session_token"
	userKey    = "auth.user"
)

type Config struct {
	SessionTTL     time.Duration
	TokenTTL       time.Duration
	CookieSecure   bool
	AutoVerify     bool
	MinPasswordLen int
	PublicURL      string
	AdminEmails    []string
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 48 * time.Hour
	}
	if c.MinPasswordLen <= 0 {
		c.MinPasswordLen = 6
	}
	return c
}

func (c Config) isAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

type Service struct {
	repo   *Repository
	cfg    Config
	mailer Mailer
	log    *slog.Logger
}

func NewService(repo *Repository, cfg Config, mailer Mailer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Service{repo: repo, cfg: cfg.withDefaults(), mailer: mailer, log: logger}
}

func (s *Service) Repository() *Repository { return s.repo }

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func normEmail(e string) string { return strings.TrimSpace(strings.ToLower(e)) }

func validEmail(e string) bool {
	at := strings.Index(e, "@")
	return at > 0 && at < len(e)-1 && !strings.ContainsAny(e, " \t\r\n")
}

func RegisterRoutes(r gin.IRouter, s *Service) {
	api := r.Group("/api/auth")

	api.POST("/register", func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		req.Email = normEmail(req.Email)
		if !validEmail(req.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		if len(req.Password) < s.cfg.MinPasswordLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password too short (min %d)", s.cfg.MinPasswordLen)})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
			return
		}

		u, err := s.repo.CreateUser(c.Request.Context(), NewUser{
			Email:         req.Email,
			PasswordHash:  string(hash),
			DisplayName:   strings.TrimSpace(req.DisplayName),
			EmailVerified: s.cfg.AutoVerify,
			ForceAdmin:    s.cfg.isAdminEmail(req.Email),
		})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !u.EmailVerified {
			s.sendVerification(c, u)
		}
		c.JSON(http.StatusCreated, gin.H{"id": u.ID, "email": u.Email, "email_verified": u.EmailVerified})
	})

	api.GET("/verify", func(c *gin.Context) {
		tok := c.Query("token")
		if tok == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
			return
		}
		uid, err := s.repo.ConsumeToken(c.Request.Context(), tok, PurposeVerify)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		if err := s.repo.MarkVerified(c.Request.Context(), uid); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// resend and reset answer 200 whether or not the address exists.
	api.POST("/resend-verification", func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if u, err := s.repo.GetUserByEmail(c.Request.Context(), normEmail(req.Email)); err == nil && !u.EmailVerified {
			s.sendVerification(c, u)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.POST("/reset-password", func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if u, err := s.repo.GetUserByEmail(c.Request.Context(), normEmail(req.Email)); err == nil {
			s.sendReset(c, u)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.POST("/reset-password/confirm", func(c *gin.Context) {
		var req struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if len(req.Password) < s.cfg.MinPasswordLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password too short (min %d)", s.cfg.MinPasswordLen)})
			return
		}
		uid, err := s.repo.ConsumeToken(c.Request.Context(), req.Token, PurposeReset)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		if err := s.setPassword(c, uid, req.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.POST("/login", func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		req.Email = normEmail(req.Email)
		if req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing email or password"})
			return
		}

		u, err := s.repo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if !u.EmailVerified {
			c.JSON(http.StatusForbidden, gin.H{"error": ErrEmailNotVerified.Error(), "needs_verification": true})
			return
		}

		sess, err := s.repo.CreateSession(c.Request.Context(), u.ID, s.cfg.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session failed"})
			return
		}
		maxAge := int(time.Until(sess.ExpiresAt).Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, sess.Token, maxAge, "/", "", s.cfg.CookieSecure, true)
		c.JSON(http.StatusOK, gin.H{"ok": true, "user": u})
	})

	api.POST("/logout", func(c *gin.Context) {
		tok, err := c.Cookie(CookieName)
		if err == nil && tok != "" {
			_ = s.repo.DeleteSession(c.Request.Context(), tok)
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, "", -1, "/", "", s.cfg.CookieSecure, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.GET("/me", s.AuthRequired(), func(c *gin.Context) {
		u, _ := UserFrom(c)
		c.JSON(http.StatusOK, u)
	})

	api.PATCH("/me", s.AuthRequired(), func(c *gin.Context) {
		u, _ := UserFrom(c)
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		u.DisplayName = strings.TrimSpace(req.DisplayName)
		if err := s.repo.SetDisplayName(c.Request.Context(), u.ID, u.DisplayName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
		c.JSON(http.StatusOK, u)
	})
}

func (s *Service) sendVerification(c *gin.Context, u User) {
	tok, err := s.repo.IssueToken(c.Request.Context(), u.ID, PurposeVerify, s.cfg.TokenTTL)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "issue verification token", logging.FieldUserID, u.ID, logging.FieldError, err)
		return
	}
	s.send(c, Message{
		To:      u.Email,
		Subject: "Confirme seu e-mail",
		Body:    "Para confirmar sua conta acesse: " + s.link("/api/auth/verify", tok),
	})
}

func (s *Service) sendReset(c *gin.Context, u User) {
	tok, err := s.repo.IssueToken(c.Request.Context(), u.ID, PurposeReset, s.cfg.TokenTTL)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "issue reset token", logging.FieldUserID, u.ID, logging.FieldError, err)
		return
	}
	s.send(c, Message{
		To:      u.Email,
		Subject: "Redefinição de senha",
		Body:    "Para escolher uma nova senha acesse: " + s.link("/reset-password", tok),
	})
}

// send never fails the request; the user can ask for the mail again.
func (s *Service) send(c *gin.Context, msg Message) {
	if err := s.mailer.Send(c.Request.Context(), msg); err != nil {
		s.log.WarnContext(c.Request.Context(), "send mail", "to", msg.To, logging.FieldError, err)
	}
}

func (s *Service) link(path, token string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// setPassword stores a new hash and signs the user out everywhere.
func (s *Service) setPassword(c *gin.Context, uid int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordHash(c.Request.Context(), uid, string(hash)); err != nil {
		return err
	}
	return s.repo.DeleteUserSessions(c.Request.Context(), uid)
}

// CurrentUser resolves the user from the session cookie.
func (s *Service) CurrentUser(c *gin.Context) (User, bool) {
	if u, ok := UserFrom(c); ok {
		return u, true
	}
	tok, err := c.Cookie(CookieName)
	if err != nil || tok == "" {
		return User{}, false
	}
	u, err := s.repo.GetUserBySession(c.Request.Context(), tok)
	if err != nil {
		return User{}, false
	}
	c.Set(userKey, u)
	return u, true
}

// UserFrom returns the user stored by AuthRequired.
func UserFrom(c *gin.Context) (User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}

func (s *Service) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// authenticate resolves the session cookie and stores the user on c. On failure it
// aborts with the response already written. It never calls c.Next.
func (s *Service) authenticate(c *gin.Context) (User, bool) {
	tok, err := c.Cookie(CookieName)
	if err != nil || tok == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return User{}, false
	}
	u, err := s.repo.GetUserBySession(c.Request.Context(), tok)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return User{}, false
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth failed"})
		return User{}, false
	}
	c.Set(userKey, u)
	return u, true
}

// VerifiedRequired runs after AuthRequired and rejects accounts whose e-mail is not
// confirmed yet.
func (s *Service) VerifiedRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := UserFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !u.EmailVerified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrEmailNotVerified.Error(), "needs_verification": true})
			return
		}
		c.Next()
	}
}

// AdminRequired authenticates the caller and requires the admin flag.
func (s *Service) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := s.authenticate(c)
		if !ok {
			return
		}
		if !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func RegisterAdminRoutes(r gin.IRouter, s *Service) {
	admin := r.Group("/api/admin", s.AdminRequired())

	admin.GET("/users", func(c *gin.Context) {
		users, err := s.repo.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, users)
	})

	admin.POST("/users/:id/reset_password", func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if len(req.Password) < s.cfg.MinPasswordLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password too short (min %d)", s.cfg.MinPasswordLen)})
			return
		}
		if err := s.setPassword(c, id, req.Password); err != nil {
			writeRepoErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	admin.PATCH("/users/:id/admin", func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}
		var req struct {
			IsAdmin *bool `json:"is_admin"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.IsAdmin == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_admin is required"})
			return
		}
		if !*req.IsAdmin && !s.keepsAnAdmin(c, id) {
			return
		}
		if err := s.repo.SetAdmin(c.Request.Context(), id, *req.IsAdmin); err != nil {
			writeRepoErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	admin.POST("/users/:id/verify", func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}
		if err := s.repo.MarkVerified(c.Request.Context(), id); err != nil {
			writeRepoErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	admin.DELETE("/users/:id", func(c *gin.Context) {
		id, ok := userIDParam(c)
		if !ok {
			return
		}
		if me, _ := UserFrom(c); me.ID == id {
			c.JSON(http.StatusConflict, gin.H{"error": "cannot delete yourself"})
			return
		}
		if !s.keepsAnAdmin(c, id) {
			return
		}
		if err := s.repo.DeleteUser(c.Request.Context(), id); err != nil {
			writeRepoErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// keepsAnAdmin refuses changes that would leave no admin account.
func (s *Service) keepsAnAdmin(c *gin.Context, id int64) bool {
	target, err := s.repo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		writeRepoErr(c, err)
		return false
	}
	if !target.IsAdmin {
		return true
	}
	n, err := s.repo.CountOtherAdmins(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if n == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "at least one admin is required"})
		return false
	}
	return true
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeRepoErr(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
