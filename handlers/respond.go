package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"commenta.app/cloud/internal/logger"
	"github.com/go-playground/validator/v10"
)

const maxJSONBody = 1 << 20

var errEmptyBody = errors.New("request body is empty")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a JSON body into dst and runs struct validation on it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s is %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

type pagination struct {
	Page    int
	PerPage int
}

func (p pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// parsePagination reads page and per_page. page is at least 1; per_page
// defaults to 20 and is clamped to [10, 50].
func parsePagination(r *http.Request) pagination {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil {
		perPage = 20
	}
	if perPage < 10 {
		perPage = 10
	}
	if perPage > 50 {
		perPage = 50
	}
	return pagination{Page: page, PerPage: perPage}
}

type pageResponse struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func (p pagination) response(total int) pageResponse {
	return pageResponse{Total: total, Page: p.Page, PerPage: p.PerPage}
}
