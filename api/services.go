package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/judgegodwins/chess-relay/directory"
	"go.uber.org/zap"
)

type checkRoomRequest struct {
	RoomID string `uri:"id" binding:"required,max=128"`
}

type roomResponse struct {
	ID          string `json:"id"`
	Exists      bool   `json:"exists"`
	Full        bool   `json:"full"`
	Started     bool   `json:"started"`
	Status      string `json:"status,omitempty"`
	White       string `json:"white,omitempty"`
	Black       string `json:"black,omitempty"`
	Connections int    `json:"connections"`
}

// CheckRoom reports whether a room is live and whether both seats are taken,
// so a client following a shared link knows if it will play or watch.
func (s *Server) CheckRoom(c *gin.Context) {
	var data checkRoomRequest

	if err := c.ShouldBindUri(&data); err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
		return
	}

	entry, ok := s.wsManager.Lookup(data.RoomID)

	if !ok && s.directory != nil {
		var err error
		entry, ok, err = s.directory.Get(c.Request.Context(), data.RoomID)

		if err != nil {
			s.logger.Error("error getting room data from directory", zap.String("room_id", data.RoomID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse(ErrorMessage500))
			return
		}
	}

	if !ok {
		c.JSON(http.StatusNotFound, successResponse("room not found", roomResponse{ID: data.RoomID}))
		return
	}

	c.JSON(http.StatusOK, successResponse("room data", toRoomResponse(entry)))
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse("ok", s.wsManager.Stats()))
}

func toRoomResponse(e directory.Entry) roomResponse {
	return roomResponse{
		ID:          e.ID,
		Exists:      true,
		Full:        e.Full(),
		Started:     e.Started,
		Status:      e.Status,
		White:       e.White,
		Black:       e.Black,
		Connections: e.Connections,
	}
}
