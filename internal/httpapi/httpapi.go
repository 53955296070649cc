// Package httpapi exposes the bot's read-only HTTP surface: a liveness
// probe and a snapshot of every tracked position's health, sorted so an
// operator dashboard can show the riskiest accounts first.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/0xTwyne/twyne-liquidation-bot/internal/scheduler"
)

// Server serves the bot's HTTP snapshot endpoints over one scheduler per
// chain id.
type Server struct {
	router    *mux.Router
	schedulers map[int64]*scheduler.Scheduler
}

// NewServer builds a Server over the given chain-id-to-scheduler map.
func NewServer(schedulers map[int64]*scheduler.Scheduler) *Server {
	s := &Server{schedulers: schedulers, router: mux.NewRouter()}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/liquidation/allPositions", s.handleAllPositions).Methods(http.MethodGet)
	return s
}

// Handler returns the server's http.Handler for use with http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type positionView struct {
	Address             string  `json:"address"`
	Protocol            string  `json:"protocol"`
	InternalHealthScore float64 `json:"internal_health_score"`
	ExternalHealthScore float64 `json:"external_health_score"`
	InternalDebtUSD     float64 `json:"internal_debt_usd"`
	ExternalDebtUSD     float64 `json:"external_debt_usd"`
}

// handleAllPositions returns every tracked, indebted position for the
// requested chain id, ascending by health score (riskiest first).
func (s *Server) handleAllPositions(w http.ResponseWriter, r *http.Request) {
	chainIDParam := r.URL.Query().Get("chainId")
	chainID, err := strconv.ParseInt(chainIDParam, 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid chainId query parameter", http.StatusBadRequest)
		return
	}

	sched, ok := s.schedulers[chainID]
	if !ok {
		http.Error(w, "unknown chainId", http.StatusNotFound)
		return
	}

	vaults := sched.AccountsByHealthScore()
	views := make([]positionView, 0, len(vaults))
	for _, v := range vaults {
		views = append(views, positionView{
			Address:             v.Address().Hex(),
			Protocol:            v.Protocol().String(),
			InternalHealthScore: v.InternalHealthScore(),
			ExternalHealthScore: v.ExternalHealthScore(),
			InternalDebtUSD:     v.InternalValueBorrowedUSD(),
			ExternalDebtUSD:     v.ExternalValueBorrowedUSD(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}
