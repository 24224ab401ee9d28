// Package server streams a running simulation to websocket viewers and
// exposes the operator controls and stored data over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"ringsim/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	qrSize           = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorMsg{Msg: msg})
}

// listLimit parses ?limit=, clamped to [1, maxListLimit]
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// SetupRoutes configures HTTP routes. Static files are served from
// clientDir when it is not empty.
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		client.sendStatus(MsgWelcome)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req LoginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		token, err := hub.auth.Login(req.User, req.Password, extractIP(r))
		switch {
		case errors.Is(err, ErrControlDisabled):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrBadCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case err != nil:
			log.Printf("login error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		default:
			writeJSON(w, http.StatusOK, LoginResponse{Token: token})
		}
	})

	mux.HandleFunc("/api/checkpoints", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeError(w, http.StatusServiceUnavailable, ErrNoDB.Error())
			return
		}
		rows, err := hub.db.ListCheckpoints(listLimit(r))
		if err != nil {
			log.Printf("list checkpoints: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if rows == nil {
			rows = []store.CheckpointRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Status Status           `json:"status"`
			Recent []store.StepStat `json:"recent"`
		}{Status: hub.runner.Status(), Recent: []store.StepStat{}}
		if hub.db != nil {
			recent, err := hub.db.RecentStats(listLimit(r))
			if err != nil {
				log.Printf("recent stats: %v", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if recent != nil {
				resp.Recent = recent
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	// QR code of the viewer URL, for opening the stream on a phone
	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			target = scheme + "://" + r.Host + "/"
		}
		png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot encode url")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}
