package handlers

import (
	"net/http"
	"strings"

	"commenta.app/cloud/models"
	"github.com/go-chi/chi/v5"
)

type CreateTicketRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=10000"`
}

type MessageRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

type TicketsResponse struct {
	Tickets []models.SupportTicket `json:"tickets"`
}

type TicketResponse struct {
	Ticket   *models.SupportTicket  `json:"ticket"`
	Messages []models.TicketMessage `json:"messages"`
}

type TicketMessageResponse struct {
	Message *models.TicketMessage `json:"message"`
}

func (s *Server) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.Storage.ListTicketsByUser(r.Context(), proProfile(r).ID)
	if err != nil {
		s.internalError(w, "Failed to list tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, TicketsResponse{Tickets: tickets})
}

func (s *Server) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Message)
	if subject == "" || body == "" {
		writeError(w, http.StatusBadRequest, "subject and message are required")
		return
	}

	userID := proProfile(r).ID
	ticket := &models.SupportTicket{UserID: userID, Subject: subject}
	first := &models.TicketMessage{AuthorType: models.AuthorUser, AuthorID: userID, Body: body}
	if err := s.Storage.CreateTicket(r.Context(), ticket, first); err != nil {
		s.internalError(w, "Failed to create ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, TicketResponse{Ticket: ticket, Messages: []models.TicketMessage{*first}})
}

// loadOwnTicket returns the ticket when it belongs to the current user; it
// writes a 404 otherwise so other users' tickets are indistinguishable from
// missing ones.
func (s *Server) loadOwnTicket(w http.ResponseWriter, r *http.Request) *models.SupportTicket {
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
	if ticket == nil || ticket.UserID != proProfile(r).ID {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return nil
	}
	return ticket
}

func (s *Server) GetMyTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.loadOwnTicket(w, r)
	if ticket == nil {
		return
	}
	s.writeTicket(w, r, ticket)
}

// ReplyToMyTicket adds a user message and reopens the ticket.
func (s *Server) ReplyToMyTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.loadOwnTicket(w, r)
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
		AuthorType: models.AuthorUser,
		AuthorID:   ticket.UserID,
		Body:       strings.TrimSpace(req.Body),
	}
	if err := s.Storage.AddTicketMessage(r.Context(), msg, models.TicketStatusOpen, ""); err != nil {
		s.internalError(w, "Failed to add ticket message", err)
		return
	}
	writeJSON(w, http.StatusCreated, TicketMessageResponse{Message: msg})
}

func (s *Server) writeTicket(w http.ResponseWriter, r *http.Request, ticket *models.SupportTicket) {
	messages, err := s.Storage.ListTicketMessages(r.Context(), ticket.ID)
	if err != nil {
		s.internalError(w, "Failed to load ticket messages", err)
		return
	}
	writeJSON(w, http.StatusOK, TicketResponse{Ticket: ticket, Messages: messages})
}
