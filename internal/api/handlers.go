package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tmalik/banking-core/internal/models"
	"github.com/tmalik/banking-core/internal/service"
)

// idempotencyHeader carries the caller-supplied idempotency key. It is
// forwarded into the engine unchanged.
const idempotencyHeader = "Idempotency-Key"

// Handler is for handling api requests
type Handler struct {
	users    *service.UserService
	accounts *service.AccountService
	engine   *service.Engine
}

func NewHandler(users *service.UserService, accounts *service.AccountService, engine *service.Engine) *Handler {
	return &Handler{
		users:    users,
		accounts: accounts,
		engine:   engine,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// for error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrSelfTransfer),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrDuplicateUser),
		errors.Is(err, models.ErrPasswordMatch):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidPin), errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrAccountLocked):
		return http.StatusForbidden
	case errors.Is(err, models.ErrDuplicateInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("request failed")
		respondError(w, status, "internal server error")
		return
	}
	respondError(w, status, err.Error())
}

// user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := h.users.Register(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user.Response())
}

// login issues a session token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.LoginResponse{Token: token})
}

// account opening for the authenticated caller
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if len(req.Pin) != 4 {
		respondError(w, http.StatusBadRequest, "pin must be exactly 4 digits")
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), requesterID(r), req.Pin)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, account.Response())
}

// the authenticated caller's own account
func (h *Handler) GetMyAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccountByOwner(r.Context(), requesterID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account.Response())
}

// admin lookup of any account by its number
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	account, err := h.accounts.GetAccountByNumber(r.Context(), vars["accountNumber"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account.Response())
}

// admin listing of all accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response := make([]models.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		response = append(response, a.Response())
	}
	respondJSON(w, http.StatusOK, response)
}

// pin change for the caller's own account
func (h *Handler) ChangePin(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if len(req.Pin) != 4 {
		respondError(w, http.StatusBadRequest, "pin must be exactly 4 digits")
		return
	}

	account, err := h.accounts.ChangePin(r.Context(), requesterID(r), req.Pin)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account.Response())
}

// the authenticated caller's transaction history
func (h *Handler) GetMyTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.accounts.GetMyTransactions(r.Context(), requesterID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

// admin listing of the full journal
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.accounts.ListTransactions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

// admin listing of all users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, u.Response())
	}
	respondJSON(w, http.StatusOK, response)
}

// transfer between internal accounts
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	resp, err := h.engine.Transfer(r.Context(), requesterID(r), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"source":      resp.Source,
		"destination": resp.Destination,
		"success":     resp.Success,
	}).Info("transfer executed")
	respondJSON(w, http.StatusOK, resp)
}

// deposit into an account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	resp, err := h.engine.Deposit(r.Context(), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"destination": resp.Destination,
		"success":     resp.Success,
	}).Info("deposit made")
	respondJSON(w, http.StatusOK, resp)
}

// withdrawal to an external bank
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	resp, err := h.engine.Withdraw(r.Context(), requesterID(r), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"source":  resp.Source,
		"success": resp.Success,
	}).Info("withdrawal executed")
	respondJSON(w, http.StatusOK, resp)
}

// handles health check
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sets up the API routes
func SetupRoutes(r *mux.Router, users *service.UserService, accounts *service.AccountService, engine *service.Engine) {
	h := NewHandler(users, accounts, engine)

	// Health check (check if API is working)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Auth routes
	r.HandleFunc("/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")

	// Authenticated routes
	authed := r.PathPrefix("/").Subrouter()
	authed.Use(authMiddleware(users))

	authed.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	authed.HandleFunc("/accounts/me", h.GetMyAccount).Methods("GET")
	authed.HandleFunc("/accounts/me/pin", h.ChangePin).Methods("PUT")
	authed.HandleFunc("/transactions/me", h.GetMyTransactions).Methods("GET")

	authed.HandleFunc("/transactions/transfer", h.Transfer).Methods("POST")
	authed.HandleFunc("/transactions/deposit", h.Deposit).Methods("POST")
	authed.HandleFunc("/transactions/withdraw", h.Withdraw).Methods("POST")

	// Admin routes
	authed.HandleFunc("/accounts", adminOnly(h.ListAccounts)).Methods("GET")
	authed.HandleFunc("/accounts/{accountNumber:[0-9]+}", adminOnly(h.GetAccount)).Methods("GET")
	authed.HandleFunc("/transactions", adminOnly(h.ListTransactions)).Methods("GET")
	authed.HandleFunc("/users", adminOnly(h.ListUsers)).Methods("GET")
}
