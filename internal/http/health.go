package http

import (
	"net/http"

	"github.com/nextlevelbuilder/jobscout/internal/mcp"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

type healthResponse struct {
	Status   string      `json:"status"`
	Protocol int         `json:"protocol"`
	Version  string      `json:"version,omitempty"`
	MCP      *mcp.Status `json:"mcp,omitempty"`
	Cached   int         `json:"cached_reports"`
}

// handleHealth reports liveness. The MCP server is started lazily, so a
// stopped subprocess is not unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Protocol: protocol.ProtocolVersion, Version: s.opts.Version}
	if s.opts.Status != nil {
		st := s.opts.Status()
		resp.MCP = &st
	}
	if s.cache != nil {
		resp.Cached = s.cache.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
