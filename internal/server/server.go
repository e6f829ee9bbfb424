// Package server exposes the HTTP JSON surface. Handlers parse and route;
// every permission decision lives below, in the accounts service.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/fundpool/fundpool/internal/accounts"
	"github.com/fundpool/fundpool/internal/auth"
	"github.com/fundpool/fundpool/internal/models"
)

type Server struct {
	mux    *http.ServeMux
	svc    *accounts.Service
	authn  *auth.Authenticator
	logger *slog.Logger
}

func New(svc *accounts.Service, authn *auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:    http.NewServeMux(),
		svc:    svc,
		authn:  authn,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Start(addr string) error {
	s.logger.Info("http server starting", "addr", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /login", s.handleLogin)

	s.mux.Handle("GET /accounts", s.authn.Middleware(s.handleListAccounts))
	s.mux.Handle("POST /accounts", s.authn.Middleware(s.handleCreateAccount))
	s.mux.Handle("GET /accounts/{id}", s.authn.Middleware(s.handleGetAccount))
	s.mux.Handle("PUT /accounts/{id}", s.authn.Middleware(s.handleUpdateAccount))
	s.mux.Handle("DELETE /accounts/{id}", s.authn.Middleware(s.handleDeleteAccount))
	s.mux.Handle("GET /accounts/{id}/transactions", s.authn.Middleware(s.handleListAccountTransactions))

	s.mux.Handle("GET /grants", s.authn.Middleware(s.handleListGrants))
	s.mux.Handle("POST /grants", s.authn.Middleware(s.handleCreateGrant))
	s.mux.Handle("GET /grants/{id}", s.authn.Middleware(s.handleGetGrant))
	s.mux.Handle("PUT /grants/{id}", s.authn.Middleware(s.handleUpdateGrant))
	s.mux.Handle("DELETE /grants/{id}", s.authn.Middleware(s.handleRevokeGrant))

	s.mux.Handle("GET /transactions", s.authn.Middleware(s.handleListUserTransactions))
	s.mux.Handle("POST /transactions", s.authn.Middleware(s.handlePostTransaction))
	s.mux.Handle("GET /transactions/{id}", s.authn.Middleware(s.handleGetTransaction))
	s.mux.Handle("PUT /transactions/{id}", s.authn.Middleware(s.handleUpdateTransaction))
	s.mux.Handle("DELETE /transactions/{id}", s.authn.Middleware(s.handleDeleteTransaction))
}

// Users.

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	user, err := s.authn.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	token, err := s.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Accounts.

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	account, err := s.svc.CreateAccount(r.Context(), actorID, models.Account{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, actorID string) {
	list, err := s.svc.ListAccounts(r.Context(), actorID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, actorID string) {
	account, err := s.svc.GetAccount(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	account, err := s.svc.UpdateAccount(r.Context(), actorID, models.Account{
		ID:          r.PathValue("id"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := s.svc.DeleteAccount(r.Context(), actorID, r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAccountTransactions(w http.ResponseWriter, r *http.Request, actorID string) {
	list, err := s.svc.ListAccountTransactions(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Grants.

func (s *Server) handleCreateGrant(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		UserID    string `json:"user_id"`
		AccountID string `json:"account_id"`
		Level     string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	grant, err := s.svc.CreateGrant(r.Context(), actorID, models.Grant{
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Level:     models.Level(req.Level),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request, actorID string) {
	list, err := s.svc.ListGrants(r.Context(), actorID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetGrant(w http.ResponseWriter, r *http.Request, actorID string) {
	grant, err := s.svc.GetGrant(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleUpdateGrant(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		Level string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	grant, err := s.svc.UpdateGrant(r.Context(), actorID, r.PathValue("id"), models.Level(req.Level))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := s.svc.RevokeGrant(r.Context(), actorID, r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transactions.

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		AccountID   string          `json:"account_id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	tx, err := s.svc.PostTransaction(r.Context(), actorID, models.Transaction{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListUserTransactions(w http.ResponseWriter, r *http.Request, actorID string) {
	list, err := s.svc.ListUserTransactions(r.Context(), actorID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, actorID string) {
	tx, err := s.svc.GetTransaction(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	tx, err := s.svc.UpdateTransaction(r.Context(), actorID, r.PathValue("id"), models.Transaction{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := s.svc.DeleteTransaction(r.Context(), actorID, r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
