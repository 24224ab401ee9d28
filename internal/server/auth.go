package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ringsim/internal/store"
)

const (
	jwtExpiry        = 24 * time.Hour
	bcryptCost       = 12
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10

	settingSecret = "jwt_secret"
	settingHash   = "operator_hash"
)

var (
	ErrControlDisabled = errors.New("operator control is disabled")
	ErrBadCredentials  = errors.New("invalid user or password")
	ErrRateLimited     = errors.New("too many login attempts, try again later")
)

// Auth issues and checks operator tokens
type Auth struct {
	user      string
	hash      []byte // bcrypt hash of the operator password, nil disables control
	jwtSecret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth sets up operator authentication. A non-empty password is hashed
// and persisted; an empty one falls back to the stored hash. db may be nil.
func NewAuth(db *store.DB, user, password string) (*Auth, error) {
	a := &Auth{
		user:      user,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
	switch {
	case password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash operator password: %w", err)
		}
		a.hash = hash
		if db != nil {
			if err := db.SetSetting(settingHash, string(hash)); err != nil {
				log.Printf("warning: could not persist operator hash: %v", err)
			}
		}
	case db != nil:
		if h := db.GetSetting(settingHash); h != "" {
			a.hash = []byte(h)
		}
	}
	if a.hash == nil {
		log.Printf("auth: no operator password, control disabled")
	}
	return a, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *store.DB) []byte {
	if db != nil {
		if h := db.GetSetting(settingSecret); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(settingSecret, hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// Enabled reports whether an operator can log in
func (a *Auth) Enabled() bool { return a.hash != nil }

// Login checks the operator credentials and returns a token
func (a *Auth) Login(user, password, ip string) (string, error) {
	if !a.Enabled() {
		return "", ErrControlDisabled
	}
	if !a.checkRate(ip) {
		return "", ErrRateLimited
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil || !userOK {
		return "", ErrBadCredentials
	}
	return a.generateToken(user)
}

// ValidateToken validates a JWT and returns the operator name
func (a *Auth) ValidateToken(tokenStr string) (string, error) {
	if !a.Enabled() {
		return "", ErrControlDisabled
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	user, ok := claims["usr"].(string)
	if !ok || user != a.user {
		return "", fmt.Errorf("invalid token claims")
	}
	return user, nil
}

func (a *Auth) generateToken(user string) (string, error) {
	claims := jwt.MapClaims{
		"usr": user,
		"exp": time.Now().Add(jwtExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
