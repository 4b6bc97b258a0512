package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	frameSize  = 32
	liveShade  = 40
	clearShade = 200
)

type window struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
}

type frame struct {
	TargetID   string    `json:"target_id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Pixels     []byte    `json:"pixels"`
	CapturedAt time.Time `json:"captured_at"`
}

// screen simulates one window that periodically shows the condition. Each
// action clears it with its own probability.
type screen struct {
	mu        sync.Mutex
	live      bool
	clearedAt time.Time
	relapse   time.Duration
	odds      map[string]float64
	rng       *rand.Rand
}

func (s *screen) isLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live && time.Since(s.clearedAt) > s.relapse {
		s.live = true
	}
	return s.live
}

func (s *screen) run(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.odds[action]
	if !ok {
		p = 0.2
	}
	if s.live && s.rng.Float64() < p {
		s.live = false
		s.clearedAt = time.Now()
	}
	return true
}

func (s *screen) capture(id string) frame {
	shade := byte(clearShade)
	if s.isLive() {
		shade = liveShade
	}
	pixels := make([]byte, frameSize*frameSize)
	for i := range pixels {
		pixels[i] = shade
	}
	return frame{TargetID: id, Width: frameSize, Height: frameSize, Pixels: pixels, CapturedAt: time.Now().UTC()}
}

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	relapse := flag.Duration("relapse", 20*time.Second, "time until a cleared window shows the condition again")
	flag.Parse()

	sim := &screen{
		live:    true,
		relapse: *relapse,
		odds: map[string]float64{
			"enhanced_keyboard":  0.3,
			"mouse_swipe_up":     0.7,
			"combination_method": 0.5,
			"mouse_click_next":   0.2,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/targets", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"targets": []window{
				{ID: "0x3a00007", Title: "TikTok - LIVE", Width: 540, Height: 960, Visible: true},
				{ID: "0x3a00009", Title: "Terminal", Width: 1200, Height: 800, Visible: true},
				{ID: "0x3a0000b", Title: "TikTok mini player", Width: 280, Height: 500, Visible: true},
			},
		})
	})

	mux.HandleFunc("/v1/capture", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			TargetID string `json:"target_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, sim.capture(req.TargetID))
	})

	mux.HandleFunc("/v1/classify", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			frame
			Keywords []string `json:"keywords"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		present := len(req.Pixels) > 0 && req.Pixels[len(req.Pixels)/2] == liveShade
		keyword := ""
		if present && len(req.Keywords) > 0 {
			keyword = req.Keywords[0]
		}
		writeJSON(w, map[string]any{"present": present, "keyword": keyword})
	})

	mux.HandleFunc("/v1/actions/", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		name, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/v1/actions/"), "/run")
		if !ok || name == "" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"ok": sim.run(name)})
	})

	logger := log.New(log.Writer(), "agent-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
