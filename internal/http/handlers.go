package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/catalog"
	"github.com/example/fleet-pricing/internal/contracts"
	"github.com/example/fleet-pricing/internal/models"
	"github.com/example/fleet-pricing/internal/packing"
	"github.com/example/fleet-pricing/internal/pricing"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

type quotePayload struct {
	OrderID           uuid.UUID        `json:"order_id"`
	Packages          []models.Package `json:"packages"`
	Pickup            models.Coord     `json:"pickup"`
	Dropoff           models.Coord     `json:"dropoff"`
	CategoryID        uuid.UUID        `json:"category_id"`
	HasInsurance      bool             `json:"has_insurance"`
	PromotionDiscount decimal.Decimal  `json:"promotion_discount"`
	TripDate          string           `json:"trip_date,omitempty"`
}

func (p quotePayload) toRequest() (contracts.QuoteRequest, error) {
	req := contracts.QuoteRequest{
		OrderID:           p.OrderID,
		Packages:          p.Packages,
		Pickup:            p.Pickup,
		Dropoff:           p.Dropoff,
		CategoryID:        p.CategoryID,
		HasInsurance:      p.HasInsurance,
		PromotionDiscount: p.PromotionDiscount,
	}
	if p.TripDate != "" {
		d, err := time.Parse("2006-01-02", p.TripDate)
		if err != nil {
			return req, &pricing.InvalidInputError{Field: "trip_date", Reason: "want YYYY-MM-DD"}
		}
		req.TripDate = d
	}
	return req, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var p quotePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}
	req, err := p.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.Assembler.BuildQuote(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var p quotePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}
	req, err := p.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}
	c, err := s.Assembler.CreateContract(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["contract_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "contract_id", Reason: "want a UUID"})
		return
	}
	c, err := s.Assembler.Store.ContractByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

type depositPayload struct {
	VehicleIDs []uuid.UUID `json:"vehicle_ids,omitempty"`
	CustomerID string      `json:"customer_id,omitempty"`
}

// handleConfirmDeposit reserves vehicles and places the deposit hold. When the
// caller does not name vehicles, free ones are suggested from the snapshot's
// size rules.
func (s *Server) handleConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["contract_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "contract_id", Reason: "want a UUID"})
		return
	}
	var p depositPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}

	if len(p.VehicleIDs) == 0 {
		c, err := s.Assembler.Store.ContractByID(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		buckets, err := contracts.BucketsFromSnapshot(c.Snapshot)
		if err != nil {
			s.writeError(w, err)
			return
		}
		p.VehicleIDs, err = s.Assembler.SuggestVehicles(r.Context(), buckets, c.TripDate, c.OrderID)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	c, err := s.Assembler.ConfirmDeposit(r.Context(), id, p.VehicleIDs, p.CustomerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"contract": c, "vehicle_ids": p.VehicleIDs})
}

func (s *Server) handleFullPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["contract_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "contract_id", Reason: "want a UUID"})
		return
	}
	c, err := s.Assembler.ConfirmFullPayment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["contract_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "contract_id", Reason: "want a UUID"})
		return
	}
	c, err := s.Assembler.Store.ContractByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.Assembler.ConsumeForAssignment(r.Context(), c.OrderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"order_id": c.OrderID, "consumed": n})
}

type cancelPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "order_id", Reason: "want a UUID"})
		return
	}
	var p cancelPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&p)
	}
	n, err := s.Assembler.CancelOrder(r.Context(), id, p.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "freed_reservations": n})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["vehicle_id"])
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "vehicle_id", Reason: "want a UUID"})
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, &pricing.InvalidInputError{Field: "date", Reason: "want YYYY-MM-DD"})
		return
	}
	held, err := s.Ledger.IsReserved(r.Context(), id, date, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"vehicle_id": id,
		"date":       date.Format("2006-01-02"),
		"reserved":   held,
	})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		http.Error(w, "want a UUID order id", 400)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	s.WSReg.Add(id, conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain errors onto HTTP statuses. Conflicts and capacity
// misses are expected outcomes and are answered with enough structure for the
// client to react, not just a message string.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		tooLarge   *packing.PackageTooLargeError
		invalid    *pricing.InvalidInputError
		noTier     *pricing.NoPricingTierError
		noCategory *pricing.NoCategoryRuleError
		reserved   *reservation.AlreadyReservedError
		state      *reservation.StateConflictError
		noVehicle  *contracts.NoVehicleAvailableError
		badStatus  *contracts.StatusError
	)
	switch {
	case errors.As(err, &invalid):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_input", Message: err.Error()})
	case errors.As(err, &tooLarge):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "package_too_large", Message: err.Error()})
	case errors.As(err, &noTier):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "no_pricing_tier", Message: err.Error()})
	case errors.As(err, &noCategory):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "no_category_rule", Message: err.Error()})
	case errors.As(err, &reserved):
		s.writeJSON(w, http.StatusConflict, errorBody{Code: "vehicle_already_reserved", Message: err.Error()})
	case errors.As(err, &noVehicle):
		s.writeJSON(w, http.StatusConflict, errorBody{Code: "no_vehicle_available", Message: err.Error()})
	case errors.As(err, &badStatus):
		s.writeJSON(w, http.StatusConflict, errorBody{Code: "contract_status_conflict", Message: err.Error()})
	case errors.As(err, &state):
		s.writeJSON(w, http.StatusConflict, errorBody{Code: "reservation_state_conflict", Message: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()})
	case errors.Is(err, catalog.ErrNoSettings):
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Code: "misconfigured", Message: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
	}
}
