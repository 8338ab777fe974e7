package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwv/tudoconflate/conflate"
)

// maxMatchRequestBytes caps the body of POST /match.
const maxMatchRequestBytes = 100 << 20

// matchRequest is the body of POST /match.
type matchRequest struct {
	Reference json.RawMessage `json:"reference"`
	Subject   json.RawMessage `json:"subject"`
}

// matchResponse is returned by POST /match.
type matchResponse struct {
	Run              *conflate.Run `json:"run"`
	ReferenceSkipped []string      `json:"referenceSkipped,omitempty"`
	SubjectSkipped   []string      `json:"subjectSkipped,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(store *conflate.SessionStore, matching conflate.MatchingConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, hasReference := store.Dataset(conflate.RoleReference)
		_, hasSubject := store.Dataset(conflate.RoleSubject)
		status := struct {
			Status       string    `json:"status"`
			Timestamp    time.Time `json:"timestamp"`
			HasReference bool      `json:"hasReference"`
			HasSubject   bool      `json:"hasSubject"`
			HasRun       bool      `json:"hasRun"`
		}{
			Status:       "ok",
			Timestamp:    time.Now(),
			HasReference: hasReference,
			HasSubject:   hasSubject,
			HasRun:       store.LatestRun() != nil,
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		run := store.LatestRun()
		if run == nil {
			http.Error(w, "No matching run available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(w, http.StatusOK, run)
	})

	mux.HandleFunc("/match", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxMatchRequestBytes))
		if err != nil {
			http.Error(w, "Error reading request body", http.StatusBadRequest)
			return
		}
		var req matchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			return
		}
		if len(req.Reference) == 0 || len(req.Subject) == 0 {
			http.Error(w, "Both reference and subject are required", http.StatusBadRequest)
			return
		}

		reference, refErrs, err := conflate.LoadGeoJSON(req.Reference, conflate.LoadOptions{Prefix: conflate.RoleReference})
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid reference: %v", err), http.StatusBadRequest)
			return
		}
		subject, subErrs, err := conflate.LoadGeoJSON(req.Subject, conflate.LoadOptions{Prefix: conflate.RoleSubject})
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid subject: %v", err), http.StatusBadRequest)
			return
		}

		run, err := conflate.GenerateMatches(r.Context(), reference, subject, matching, nil)
		if err != nil {
			log.Printf("[HTTP] /match failed: %v", err)
			http.Error(w, "Matching failed", http.StatusInternalServerError)
			return
		}
		if run.Cancelled {
			http.Error(w, "Matching cancelled", http.StatusServiceUnavailable)
			return
		}
		log.Printf("[HTTP] /match run %s: %d pairs", run.ID, len(run.Pairs))

		writeJSON(w, http.StatusOK, matchResponse{
			Run:              run,
			ReferenceSkipped: conversionMessages(refErrs),
			SubjectSkipped:   conversionMessages(subErrs),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func conversionMessages(errs []conflate.ConversionError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
