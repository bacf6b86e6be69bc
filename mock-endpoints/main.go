// Command mock-endpoints runs local webhook receivers for manual testing.
// Set WEBHOOK_SECRET to the subscriber's secret to check signatures.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/signature"
)

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	secret := os.Getenv("WEBHOOK_SECRET")

	// Successful endpoint, always returns 200
	http.HandleFunc("/webhook/success", receive(secret, func(w http.ResponseWriter, r *http.Request) int {
		respond(w, http.StatusOK, map[string]string{"status": "received"})
		return http.StatusOK
	}))

	// Slow endpoint, delays 3 seconds before responding
	http.HandleFunc("/webhook/slow", receive(secret, func(w http.ResponseWriter, r *http.Request) int {
		time.Sleep(3 * time.Second)
		respond(w, http.StatusOK, map[string]string{"status": "received (slow)"})
		return http.StatusOK
	}))

	// Failing endpoint, always returns 500
	http.HandleFunc("/webhook/fail", receive(secret, func(w http.ResponseWriter, r *http.Request) int {
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return http.StatusInternalServerError
	}))

	// Flaky endpoint, fails the first attempt of every delivery
	var seen sync.Map
	http.HandleFunc("/webhook/flaky", receive(secret, func(w http.ResponseWriter, r *http.Request) int {
		if _, loaded := seen.LoadOrStore(r.Header.Get("X-Webhook-Delivery"), struct{}{}); !loaded {
			respond(w, http.StatusServiceUnavailable, map[string]string{"error": "try again later"})
			return http.StatusServiceUnavailable
		}
		respond(w, http.StatusOK, map[string]string{"status": "received (after retry)"})
		return http.StatusOK
	}))

	// Stats endpoint, shows request count
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock endpoint server starting on :%s", port)
	log.Printf("  POST /webhook/success  -> 200 OK")
	log.Printf("  POST /webhook/slow     -> 200 OK (3s delay)")
	log.Printf("  POST /webhook/fail     -> 500 Error")
	log.Printf("  POST /webhook/flaky    -> 503 on first attempt, then 200")
	log.Printf("  GET  /stats            -> request count")
	if secret == "" {
		log.Printf("WEBHOOK_SECRET not set, signatures are not checked")
	}

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// receive checks the signature when a secret is configured, then hands the
// request to next and logs the status it wrote.
func receive(secret string, next func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			logRequest(r, count, http.StatusBadRequest, "-")
			return
		}

		sig := "unchecked"
		if secret != "" {
			if !signature.Verify(secret, body, r.Header.Get(signature.HeaderName)) {
				respond(w, http.StatusUnauthorized, map[string]string{"error": "bad signature"})
				logRequest(r, count, http.StatusUnauthorized, "invalid")
				return
			}
			sig = "valid"
		}

		logRequest(r, count, next(w, r), sig)
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func logRequest(r *http.Request, count int64, status int, sig string) {
	fmt.Printf("[#%d] %s %s -> %d | sig=%s event=%s webhook=%s delivery=%s attempt=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		sig,
		r.Header.Get("X-Event-Type"),
		truncate(r.Header.Get("X-Webhook-Id"), 8),
		truncate(r.Header.Get("X-Webhook-Delivery"), 8),
		r.Header.Get("X-Webhook-Attempt"),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
