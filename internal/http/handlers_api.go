package http

import (
	"errors"
	"net/http"
	"time"

	"recargas/internal/auth"
	"recargas/internal/core"
	applog "recargas/internal/log"
)

// rechargeJSON is the API representation of a recharge.
type rechargeJSON struct {
	ID       int64   `json:"id"`
	Date     string  `json:"data"`
	KWh      float64 `json:"kwh"`
	Cost     float64 `json:"custo"`
	Exempt   bool    `json:"isento"`
	Odometer float64 `json:"odometro"`
	Notes    string  `json:"observacoes"`
	Location string  `json:"local"`
}

func toRechargeJSON(r core.Recharge) rechargeJSON {
	return rechargeJSON{
		ID:       r.ID,
		Date:     r.Date.Format(time.RFC3339),
		KWh:      r.KWh,
		Cost:     r.Cost,
		Exempt:   r.Exempt,
		Odometer: r.Odometer,
		Notes:    r.Notes,
		Location: r.Location,
	}
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	jsonError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// handleAPILogin accepts {"username","password"} and returns a bearer token
// besides setting the session cookie.
func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, token, err := s.accounts.Login(r.Context(), p.Get("username"), p.Secret("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.metrics.failedLogins.Add(1)
		jsonError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "API login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		jsonError(w, http.StatusInternalServerError, "Login unavailable")
		return
	}

	s.metrics.logins.Add(1)
	s.setSession(w, token)
	jsonSuccess(w, apiStatus{Message: "Logged in", UserID: u.ID, Token: token})
}

func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	jsonSuccess(w, apiStatus{Message: "Logged out"})
}

// handleAPIRecharges lists the user's recharges newest first or creates one.
func (s *Server) handleAPIRecharges(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	switch r.Method {
	case http.MethodGet:
		recs, err := s.recharges.AllRecharges(r.Context(), user.ID, core.RechargeFilter{})
		if err != nil {
			s.logger.ErrorContext(r.Context(), "API list failed", applog.FieldOperation, applog.OpList, applog.FieldError, err)
			jsonError(w, http.StatusInternalServerError, "Could not list recharges")
			return
		}
		out := make([]rechargeJSON, 0, len(recs))
		for _, rec := range recs {
			out = append(out, toRechargeJSON(rec))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		p := NewRequestBodyParser(r)
		if err := p.Parse(); err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		rec, err := RechargeFromValues(p, core.Recharge{UserID: user.ID}, false)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := s.recharges.CreateRecharge(r.Context(), rec)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.rechargesCreated.Add(1)
		jsonSuccess(w, apiStatus{ID: id})

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// handleAPIRecharge reads, merges or deletes one recharge. Recharges of
// other users are reported as missing.
func (s *Server) handleAPIRecharge(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusNotFound, "Recharge not found")
		return
	}
	rec, err := s.recharges.GetRecharge(r.Context(), user.ID, id)
	if errors.Is(err, core.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "Recharge not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "API get failed", applog.FieldRechargeID, id, applog.FieldError, err)
		jsonError(w, http.StatusInternalServerError, "Could not load recharge")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toRechargeJSON(rec))

	case http.MethodPut:
		p := NewRequestBodyParser(r)
		if err := p.Parse(); err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		merged, err := RechargeFromValues(p, rec, true)
		if err == nil {
			err = s.recharges.UpdateRecharge(r.Context(), merged)
		}
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonSuccess(w, apiStatus{})

	case http.MethodDelete:
		if err := s.recharges.DeleteRecharge(r.Context(), user.ID, id); err != nil {
			s.logger.ErrorContext(r.Context(), "API delete failed", applog.FieldRechargeID, id, applog.FieldError, err)
			jsonError(w, http.StatusInternalServerError, "Could not delete recharge")
			return
		}
		jsonSuccess(w, apiStatus{})

	default:
		methodNotAllowed(w, "GET, PUT, DELETE")
	}
}

type settingsJSON struct {
	FuelPrice   float64 `json:"preco_gasolina"`
	FuelEconomy float64 `json:"consumo_km_l"`
}

// handleAPISettings returns the comparison config, zeros when unset.
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	cfg, err := s.recharges.Settings(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "API settings failed", applog.FieldError, err)
		jsonError(w, http.StatusInternalServerError, "Could not load settings")
		return
	}
	out := settingsJSON{}
	if cfg != nil {
		out = settingsJSON{FuelPrice: cfg.FuelPrice, FuelEconomy: cfg.FuelEconomy}
	}
	writeJSON(w, http.StatusOK, out)
}
