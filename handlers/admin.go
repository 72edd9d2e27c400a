package handlers

import (
	"errors"
	"net/http"
	"strings"

	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func (s *Server) AdminMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"admin": true})
}

type StatsResponse struct {
	Users    int `json:"users"`
	Pro      int `json:"pro"`
	Sites    int `json:"sites"`
	Versions int `json:"versions"`
}

func (s *Server) AdminStats(w http.ResponseWriter, r *http.Request) {
	var stats StatsResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		stats.Users, err = s.Storage.CountProfiles(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Pro, err = s.Storage.CountProProfiles(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Sites, err = s.Storage.CountSites(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Versions, err = s.Storage.CountVersions(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.internalError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type UsersResponse struct {
	Users []models.Profile `json:"users"`
	pageResponse
}

func (s *Server) AdminUsers(w http.ResponseWriter, r *http.Request) {
	page := parsePagination(r)

	var (
		users []models.Profile
		total int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		users, err = s.Storage.ListProfiles(ctx, page.Offset(), page.PerPage)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.Storage.CountProfiles(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.internalError(w, "Failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users, pageResponse: page.response(total)})
}

type AdminSitesResponse struct {
	Sites []models.SiteOverview `json:"sites"`
	pageResponse
}

func (s *Server) AdminSites(w http.ResponseWriter, r *http.Request) {
	page := parsePagination(r)

	var (
		sites []models.SiteOverview
		total int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		sites, err = s.Storage.ListSites(ctx, page.Offset(), page.PerPage)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.Storage.CountSites(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.internalError(w, "Failed to list sites", err)
		return
	}
	writeJSON(w, http.StatusOK, AdminSitesResponse{Sites: sites, pageResponse: page.response(total)})
}

type PaymentsResponse struct {
	Payments []models.Profile `json:"payments"`
	pageResponse
}

// AdminPayments lists PRO customers, most recently changed first.
func (s *Server) AdminPayments(w http.ResponseWriter, r *http.Request) {
	page := parsePagination(r)

	var (
		payments []models.Profile
		total    int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		payments, err = s.Storage.ListProProfiles(ctx, page.Offset(), page.PerPage)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.Storage.CountProProfiles(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.internalError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentsResponse{Payments: payments, pageResponse: page.response(total)})
}

func (s *Server) AdminListTickets(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if !models.ValidTicketStatus(status) {
		status = ""
	}

	tickets, err := s.Storage.ListTickets(r.Context(), status)
	if err != nil {
		s.internalError(w, "Failed to list tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, TicketsResponse{Tickets: tickets})
}

func (s *Server) loadTicket(w http.ResponseWriter, r *http.Request) *models.SupportTicket {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return nil
	}
	ticket, err := s.Storage.GetTicket(r.Context(), id)
	if err != nil {
		s.internalError(w, "Failed to load ticket", err)
		return nil
	}
	if ticket == nil {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return nil
	}
	return ticket
}

func (s *Server) AdminGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.loadTicket(w, r)
	if ticket == nil {
		return
	}
	s.writeTicket(w, r, ticket)
}

type UpdateTicketRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress closed"`
}

func (s *Server) AdminUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}

	var req UpdateTicketRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "status must be open, in_progress or closed")
		return
	}

	err := s.Storage.SetTicketStatus(r.Context(), id, req.Status)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		s.internalError(w, "Failed to update ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

// AdminReplyToTicket adds a staff message; an open ticket moves to in_progress.
func (s *Server) AdminReplyToTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.loadTicket(w, r)
	if ticket == nil {
		return
	}

	var req MessageRequest
	if err := s.decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	msg := &models.TicketMessage{
		TicketID:   ticket.ID,
		AuthorType: models.AuthorStaff,
		AuthorID:   identity(r).UserID,
		Body:       strings.TrimSpace(req.Body),
	}
	if err := s.Storage.AddTicketMessage(r.Context(), msg, models.TicketStatusInProgress, models.TicketStatusOpen); err != nil {
		s.internalError(w, "Failed to add ticket message", err)
		return
	}
	writeJSON(w, http.StatusCreated, TicketMessageResponse{Message: msg})
}
