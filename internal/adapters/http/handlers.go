package http

import (
	"net/http"
	"slices"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
)

type PeersResponse struct {
	Peers []domain.PeerID `json:"peers"`
	Count int             `json:"count"`
}

type PeerStatusResponse struct {
	ID     domain.PeerID `json:"id"`
	Online bool          `json:"online"`
}

func (h *handlers) listPeers(c *gin.Context) {
	peers := h.broker.Peers()
	c.JSON(http.StatusOK, PeersResponse{Peers: peers, Count: len(peers)})
}

// peerStatus accepts a raw session id and answers for its sanitized form.
func (h *handlers) peerStatus(c *gin.Context) {
	id := domain.Sanitize(c.Param("id"))
	if err := id.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, PeerStatusResponse{
		ID:     id,
		Online: slices.Contains(h.broker.Peers(), id),
	})
}
