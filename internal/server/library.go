package server

import (
	"errors"
	"net/http"
	"os"

	"github.com/coffersTech/nanodiscover/internal/library"
)

func libraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, library.ErrNameRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.SavedSearches())
}

func (s *Server) handleSaveSearch(w http.ResponseWriter, r *http.Request) {
	var in library.SavedSearch
	if !decodeJSON(w, r, &in) {
		return
	}
	saved, err := s.library.SaveSearch(in)
	if err != nil {
		libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteSavedSearch(r.PathValue("id")); err != nil {
		libraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	saved, err := s.library.ToggleFavorite(r.PathValue("id"))
	if err != nil {
		libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.FilterGroups())
}

func (s *Server) handleSaveFilter(w http.ResponseWriter, r *http.Request) {
	var in library.FilterGroup
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := s.library.UpsertFilterGroup(in)
	if err != nil {
		libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteFilterGroup(r.PathValue("id")); err != nil {
		libraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.History())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.library.ClearHistory(); err != nil {
		libraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
