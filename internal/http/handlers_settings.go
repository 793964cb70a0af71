package http

import (
	"net/http"

	"dairyflow/internal/log"
	"dairyflow/internal/settings"
)

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(settings.Keys()))
	for _, key := range settings.Keys() {
		v, err := s.deps.Settings.Get(key)
		if err != nil {
			s.fail(w, r, log.OpRead, err)
			return
		}
		out[key] = v
	}
	NewJSONResponse().Data(out).Write(w)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Settings.Get(r.PathValue("key"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(v).Write(w)
}

// handlePutSetting merges the body over the current value of the key.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	v, err := s.deps.Settings.Put(r.Context(), r.PathValue("key"), raw)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Setting updated", "key", r.PathValue("key"))
	NewJSONResponse().Data(v).Write(w)
}
