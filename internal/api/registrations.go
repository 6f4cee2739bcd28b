package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/registration"
	"kdf-swap-tracker/internal/storage"
)

// registerRequest is the submission body.
type registerRequest struct {
	Moniker string `json:"moniker"`
	Address string `json:"address"`
	Pubkey  string `json:"pubkey"`
}

// registrationJSON is the public shape of a registration. The raw pubkey is
// deliberately absent.
type registrationJSON struct {
	Moniker    string `json:"moniker"`
	Address    string `json:"address"`
	PubkeyHash string `json:"pubkey_hash"`
	FeeAmount  string `json:"fee_amount"`
	FeeAddress string `json:"fee_address"`
	Status     string `json:"status"`
	LastUpdate int64  `json:"last_update"`
}

func (c *Controller) renderRegistration(reg *domain.Registration) registrationJSON {
	return registrationJSON{
		Moniker:    reg.Moniker,
		Address:    reg.Address,
		PubkeyHash: reg.PubkeyHash,
		FeeAmount:  reg.RegoFee.StringFixed(8),
		FeeAddress: c.Registration.DestAddress(),
		Status:     reg.Status,
		LastUpdate: reg.LastUpdate,
	}
}

// HandleRegister accepts a competition sign-up.
// Endpoint: POST /api/v1/registrations
func (c *Controller) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if c.Registration == nil {
		writeError(w, http.StatusServiceUnavailable, "registration is disabled")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reg, err := c.Registration.Submit(r.Context(), req.Moniker, req.Address, req.Pubkey)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, c.renderRegistration(reg))
	case errors.Is(err, registration.ErrInvalidMoniker),
		errors.Is(err, registration.ErrInvalidPubkey),
		errors.Is(err, registration.ErrAddressMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "already registered or pending")
	default:
		c.Logger.Error("registration submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
	}
}

// HandleRegistrationStatus reports the state of one address's registration.
// Endpoint: GET /api/v1/registrations/{address}
func (c *Controller) HandleRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	if c.Registration == nil {
		writeError(w, http.StatusServiceUnavailable, "registration is disabled")
		return
	}

	address := mux.Vars(r)["address"]
	reg, err := c.Registration.Status(r.Context(), address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "registration not found")
			return
		}
		c.Logger.Error("registration status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, c.renderRegistration(reg))
}

// HandlePlayers lists registered players as moniker plus pubkey hash.
// Endpoint: GET /api/v1/players
func (c *Controller) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	if c.Registration == nil {
		writeError(w, http.StatusServiceUnavailable, "registration is disabled")
		return
	}

	players, err := c.Registration.Players(r.Context())
	if err != nil {
		c.Logger.Error("players failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	type playerJSON struct {
		Moniker    string `json:"moniker"`
		PubkeyHash string `json:"pubkey_hash"`
	}
	data := make([]playerJSON, len(players))
	for i, p := range players {
		data[i] = playerJSON{Moniker: p.Moniker, PubkeyHash: p.PubkeyHash}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}
