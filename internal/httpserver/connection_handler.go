package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/registry"
)

// ConnectionLister is the read side of the connection registry.
type ConnectionLister interface {
	All() []*registry.AdminConnection
	Members(room string) []*registry.AdminConnection
	Rooms(connID string) []string
}

type ConnectionView struct {
	ConnectionID string   `json:"connectionId"`
	AdminID      string   `json:"adminId"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
	IsSuperAdmin bool     `json:"isSuperAdmin"`
	Rooms        []string `json:"rooms"`
}

type ConnectionHandler struct {
	registry ConnectionLister
}

func NewConnectionHandler(reg ConnectionLister) *ConnectionHandler {
	return &ConnectionHandler{registry: reg}
}

// List handles GET /api/v1/connections. ?room= narrows to one room.
func (h *ConnectionHandler) List(c *gin.Context) {
	var conns []*registry.AdminConnection
	if room := c.Query("room"); room != "" {
		conns = h.registry.Members(room)
	} else {
		conns = h.registry.All()
	}

	views := make([]ConnectionView, 0, len(conns))
	for _, ac := range conns {
		views = append(views, ConnectionView{
			ConnectionID: ac.ConnectionID,
			AdminID:      ac.Identity.AdminID,
			Roles:        ac.Identity.Roles,
			Permissions:  ac.Identity.Permissions,
			IsSuperAdmin: ac.Identity.IsSuperAdmin,
			Rooms:        h.registry.Rooms(ac.ConnectionID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": views,
		"count":       len(views),
	})
}
