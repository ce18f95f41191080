package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// newHTTPServer sets up the node's HTTP API.
func newHTTPServer(service *PoLService, port int) *http.Server {
	router := mux.NewRouter()

	// API versioning
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", handleHealth).Methods("GET")
	v1.HandleFunc("/status", handleStatus(service)).Methods("GET")

	measurements := v1.PathPrefix("/measurements").Subrouter()
	measurements.HandleFunc("", handleSubmitMeasurement(service)).Methods("POST")
	measurements.HandleFunc("", handleListMeasurements(service)).Methods("GET")
	measurements.HandleFunc("/{id}", handleGetMeasurement(service)).Methods("GET")

	records := v1.PathPrefix("/records").Subrouter()
	records.HandleFunc("", handleListRecords(service)).Methods("GET")
	records.HandleFunc("/{id}", handleGetRecord(service)).Methods("GET")

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to write HTTP response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func handleStatus(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, service.GetStats())
	}
}

func handleSubmitMeasurement(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PeerAddr string `json:"peer_addr"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerAddr == "" {
			writeError(w, http.StatusBadRequest, "peer_addr is required")
			return
		}

		job, err := service.SubmitMeasurement(req.PeerAddr)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func handleListMeasurements(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, service.ListJobs())
	}
}

func handleGetMeasurement(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := service.GetJob(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleListRecords(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service.store == nil {
			writeError(w, http.StatusServiceUnavailable, "record store disabled")
			return
		}
		ids, err := service.store.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"records": ids})
	}
}

func handleGetRecord(service *PoLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service.store == nil {
			writeError(w, http.StatusServiceUnavailable, "record store disabled")
			return
		}
		record, err := service.store.Get(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}
