package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/annel0/mmo-level/internal/level"
	"github.com/annel0/mmo-level/internal/placement"
	"github.com/annel0/mmo-level/internal/storage"
	"github.com/annel0/mmo-level/internal/vec"
	"github.com/gin-gonic/gin"
)

// maxNearbyRadius ограничивает радиус поиска соседей в блоках
const maxNearbyRadius = 4096

// GenericResponse общий формат ответа API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BlockResponse целочисленные координаты блока
type BlockResponse struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ChunkResponse координаты чанка
type ChunkResponse struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// LocationResponse текущая локация игрока.
// Dimension пустой, если измерение не задано.
type LocationResponse struct {
	UserID    uint64        `json:"user_id"`
	Dimension string        `json:"dimension"`
	X         float32       `json:"x"`
	Y         float32       `json:"y"`
	Z         float32       `json:"z"`
	Pitch     float32       `json:"pitch"`
	Yaw       float32       `json:"yaw"`
	Direction Vector        `json:"direction"`
	Block     BlockResponse `json:"block"`
	Chunk     ChunkResponse `json:"chunk"`
}

// Vector вектор направления взгляда
type Vector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// DimensionResponse описание измерения
type DimensionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	MinY int    `json:"min_y"`
	MaxY int    `json:"max_y"`
}

// MoveRequest тело PUT /api/positions/:userID
type MoveRequest struct {
	X *float32 `json:"x" binding:"required"`
	Y *float32 `json:"y" binding:"required"`
	Z *float32 `json:"z" binding:"required"`
}

// TeleportRequest тело POST /api/positions/:userID/teleport
type TeleportRequest struct {
	Dimension string   `json:"dimension" binding:"required"`
	X         *float32 `json:"x" binding:"required"`
	Y         *float32 `json:"y" binding:"required"`
	Z         *float32 `json:"z" binding:"required"`
}

// LookRequest тело PUT /api/positions/:userID/look.
// Нужны либо pitch и yaw, либо direction.
type LookRequest struct {
	Pitch     *float32 `json:"pitch"`
	Yaw       *float32 `json:"yaw"`
	Direction *Vector  `json:"direction"`
}

const userIDKey = "user_id"

func newLocationResponse(userID uint64, loc level.Location) LocationResponse {
	resp := LocationResponse{
		UserID: userID,
		X:      loc.X(),
		Y:      loc.Y(),
		Z:      loc.Z(),
		Pitch:  loc.Pitch,
		Yaw:    loc.Yaw,
		Block:  BlockResponse{X: loc.BlockX(), Y: loc.BlockY(), Z: loc.BlockZ()},
	}
	dir := loc.Direction()
	resp.Direction = Vector{X: dir.X, Y: dir.Y, Z: dir.Z}
	if dim := loc.Dimension(); dim != nil {
		resp.Dimension = dim.Name()
	}
	chunk := loc.ChunkPos()
	resp.Chunk = ChunkResponse{X: chunk.X, Z: chunk.Y}
	return resp
}

// userIDMiddleware разбирает :userID; ноль и не-числа отклоняются
func userIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Param("userID"), 10, 64)
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный ID пользователя",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// statusFor сопоставляет ошибки трекера HTTP-статусам
func statusFor(err error) int {
	switch {
	case errors.Is(err, placement.ErrNotOnline), errors.Is(err, placement.ErrUnknownDimension):
		return http.StatusNotFound
	case errors.Is(err, placement.ErrAlreadyOnline):
		return http.StatusConflict
	case errors.Is(err, placement.ErrOutOfBounds), errors.Is(err, placement.ErrInvalidCoordinates):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrInvalidUserID), errors.Is(err, storage.ErrNonFinite):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		rs.log.Error("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{
		Success: false,
		Message: err.Error(),
	})
}

func (rs *RestServer) location(c *gin.Context, status int, message string, userID uint64, loc level.Location) {
	c.JSON(status, GenericResponse{
		Success: true,
		Message: message,
		Data:    newLocationResponse(userID, loc),
	})
}

// handleDimensions возвращает измерения уровня
func (rs *RestServer) handleDimensions(c *gin.Context) {
	dims := rs.level.Dimensions()
	resp := make([]DimensionResponse, 0, len(dims))
	for _, dim := range dims {
		bounds := dim.Bounds()
		resp = append(resp, DimensionResponse{
			ID:   dim.ID().String(),
			Name: dim.Name(),
			Type: dim.Type().String(),
			MinY: bounds.MinY,
			MaxY: bounds.MaxY(),
		})
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список измерений",
		Data:    resp,
	})
}

// handleOnline возвращает ID игроков в сети
func (rs *RestServer) handleOnline(c *gin.Context) {
	online := rs.tracker.Online()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Игроки в сети",
		Data: gin.H{
			"players": online,
			"total":   len(online),
		},
	})
}

func (rs *RestServer) handleGetPosition(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	loc, ok := rs.tracker.Location(userID)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Игрок не в сети",
		})
		return
	}
	rs.location(c, http.StatusOK, "Текущая позиция", userID, loc)
}

func (rs *RestServer) handleJoin(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	loc, err := rs.tracker.Join(c.Request.Context(), userID)
	if err != nil {
		rs.fail(c, err)
		return
	}
	rs.location(c, http.StatusCreated, "Игрок вошёл", userID, loc)
}

func (rs *RestServer) handleLeave(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	if err := rs.tracker.Leave(c.Request.Context(), userID); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Игрок вышел, позиция сохранена",
	})
}

func (rs *RestServer) handleMove(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	loc, err := rs.tracker.Move(c.Request.Context(), userID, *req.X, *req.Y, *req.Z)
	if err != nil {
		rs.fail(c, err)
		return
	}
	rs.location(c, http.StatusOK, "Позиция обновлена", userID, loc)
}

func (rs *RestServer) handleLook(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	var req LookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	var (
		loc level.Location
		err error
	)
	switch {
	case req.Direction != nil:
		loc, err = rs.tracker.LookAt(userID, vec.NewVec3f(req.Direction.X, req.Direction.Y, req.Direction.Z))
	case req.Pitch != nil && req.Yaw != nil:
		loc, err = rs.tracker.Look(userID, *req.Pitch, *req.Yaw)
	default:
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Нужны pitch и yaw или direction",
		})
		return
	}
	if err != nil {
		rs.fail(c, err)
		return
	}
	rs.location(c, http.StatusOK, "Направление обновлено", userID, loc)
}

func (rs *RestServer) handleTeleport(c *gin.Context) {
	userID := c.GetUint64(userIDKey)

	var req TeleportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	loc, err := rs.tracker.Teleport(c.Request.Context(), userID, req.Dimension, *req.X, *req.Y, *req.Z)
	if err != nil {
		rs.fail(c, err)
		return
	}
	rs.location(c, http.StatusOK, "Игрок телепортирован", userID, loc)
}

// handleNearby возвращает игроков рядом с точкой по сохранённым позициям
func (rs *RestServer) handleNearby(c *gin.Context) {
	if rs.nearby == nil {
		c.JSON(http.StatusNotImplemented, GenericResponse{
			Success: false,
			Message: "Хранилище не поддерживает поиск соседей",
		})
		return
	}

	name := c.Param("name")
	if rs.level.Dimension(name) == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Измерение не найдено: " + name,
		})
		return
	}

	x, errX := strconv.ParseFloat(c.Query("x"), 64)
	z, errZ := strconv.ParseFloat(c.Query("z"), 64)
	r, errR := strconv.ParseFloat(c.Query("r"), 64)
	if errX != nil || errZ != nil || errR != nil ||
		math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(z) || math.IsInf(z, 0) ||
		!(r > 0 && r <= maxNearbyRadius) {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Нужны конечные x, z и радиус r в (0, 4096]",
		})
		return
	}

	ids, err := rs.nearby.Nearby(c.Request.Context(), name, x, z, r)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Игроки рядом",
		Data: gin.H{
			"dimension": name,
			"players":   ids,
			"total":     len(ids),
		},
	})
}
