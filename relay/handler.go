// Package relay is the one custom server piece: a thin authorization gate
// around the privileged identity-deletion operation, plus an email relay
// that forwards contact-form fields to the SMTP sender. It carries no state.
package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/gorilla/mux"
)

// IdentityDeleter is the privileged backend operation the relay gates.
type IdentityDeleter interface {
	DeleteIdentity(ctx context.Context, userID string) error
}

// MemberFetcher resolves a member id to its profile for the admin check.
type MemberFetcher interface {
	GetMember(ctx context.Context, id string) (models.Member, error)
}

type Handler struct {
	deleter IdentityDeleter
	members MemberFetcher
	email   EmailSender
}

func NewHandler(deleter IdentityDeleter, members MemberFetcher, email EmailSender) *Handler {
	return &Handler{deleter: deleter, members: members, email: email}
}

// Router builds the relay's route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/relay/delete-account", h.DeleteAccount).Methods(http.MethodPost)
	r.HandleFunc("/api/relay/contact", h.Contact).Methods(http.MethodPost)
	return r
}

type deleteAccountRequest struct {
	UserID  string `json:"userId"`
	AdminID string `json:"adminId"`
}

// DeleteAccount verifies the caller resolves to an admin-tier profile, then
// invokes the privileged deletion. 400 on missing fields, 403 when the
// caller is not admin, 500 on unexpected failure.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AdminID == "" {
		http.Error(w, "userId and adminId are required", http.StatusBadRequest)
		return
	}

	admin, err := h.members.GetMember(r.Context(), req.AdminID)
	if err != nil || !admin.IsAdminTier() {
		logging.Logger.Warnf("Event ID: DELETE_ACCOUNT_FORBIDDEN, Description: %s attempted account deletion without admin tier", req.AdminID)
		http.Error(w, "Access forbidden: insufficient permissions", http.StatusForbidden)
		return
	}

	if err := h.deleter.DeleteIdentity(r.Context(), req.UserID); err != nil {
		logging.Logger.Errorf("Event ID: DELETE_ACCOUNT_FAILED, Description: Failed to delete identity %s: %v", req.UserID, err)
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}

	logging.Logger.Infof("Event ID: ACCOUNT_DELETED, Description: Identity %s deleted by admin %s", req.UserID, req.AdminID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "account deleted"})
}

type contactRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Contact forwards form fields to the email sender. Fire and forget from the
// core's perspective; the HTTP caller still learns whether delivery was
// accepted.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == "" || req.Subject == "" {
		http.Error(w, "to and subject are required", http.StatusBadRequest)
		return
	}

	if err := h.email.Send(req.To, req.Subject, req.Body); err != nil {
		logging.Logger.Errorf("Event ID: EMAIL_SEND_FAILED, Description: Relay email to %s failed: %v", req.To, err)
		http.Error(w, "Failed to send email", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "email sent"})
}

// EnableCORS wraps the router for browser callers.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
