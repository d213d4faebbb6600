package handlers

import (
	"errors"
	"net/http"

	"crm_backend/internal/middleware"
	"crm_backend/internal/models"
	"crm_backend/internal/services"
	"crm_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ClientHandler holds the client service.
type ClientHandler struct {
	clientService services.ClientService
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(cs services.ClientService) *ClientHandler {
	return &ClientHandler{clientService: cs}
}

// requireActor returns the authenticated caller or writes a 401.
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Usuario no autenticado", "missing actor in context"))
	}
	return actor, ok
}

// bindJSON binds the request body, answering 413 for oversized bodies and 400 otherwise.
func bindJSON(c *gin.Context, dest interface{}, op string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		utils.LogError(err, op+": Failed to bind JSON")
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusRequestEntityTooLarge, utils.ErrCodePayloadTooLarge, "Solicitud demasiado grande", err.Error()))
			return false
		}
		utils.RespondValidationFailed(c, err.Error())
		return false
	}
	return true
}

// respondClientError maps service errors onto API errors.
func respondClientError(c *gin.Context, err error, op, internalMessage string) {
	utils.LogError(err, op+": Error from clientService")
	switch {
	case errors.Is(err, services.ErrClientNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Cliente no encontrado", err.Error()))
	case errors.Is(err, services.ErrImageTooLarge):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodePayloadTooLarge, "Imagen muy grande (máximo 5MB)", err.Error()))
	case errors.Is(err, services.ErrInvalidAmount):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Monto inválido", err.Error()))
	case errors.Is(err, services.ErrEmptyMessage):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Mensaje vacío", err.Error()))
	case errors.Is(err, services.ErrInvalidArgument):
		utils.RespondValidationFailed(c, err.Error())
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, internalMessage, "Internal error"))
	}
}

// CreateClient handles the creation of a new client.
func (h *ClientHandler) CreateClient(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.CreateClientRequest
	if !bindJSON(c, &req, "CreateClient") {
		return
	}

	client, err := h.clientService.CreateClient(c.Request.Context(), req, actor)
	if err != nil {
		respondClientError(c, err, "CreateClient", "Error creando cliente")
		return
	}
	c.JSON(http.StatusCreated, client)
}

// GetClients handles fetching all clients, newest first.
func (h *ClientHandler) GetClients(c *gin.Context) {
	clients, err := h.clientService.GetClients(c.Request.Context())
	if err != nil {
		respondClientError(c, err, "GetClients", "Error obteniendo clientes")
		return
	}
	c.JSON(http.StatusOK, clients)
}

// GetClientByID handles fetching a single client by ID.
func (h *ClientHandler) GetClientByID(c *gin.Context) {
	client, err := h.clientService.GetClientByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondClientError(c, err, "GetClientByID", "Error obteniendo cliente")
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient handles a partial update; the service records what changed.
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req models.ClientUpdate
	if !bindJSON(c, &req, "UpdateClient") {
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondClientError(c, err, "UpdateClient", "Error actualizando cliente")
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient handles deleting a client.
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if _, err := h.clientService.DeleteClient(c.Request.Context(), c.Param("id"), actor); err != nil {
		respondClientError(c, err, "DeleteClient", "Error eliminando cliente")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cliente eliminado"})
}

// RecordSale handles POST /clients/:id/ventas.
func (h *ClientHandler) RecordSale(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.RecordSaleRequest
	if !bindJSON(c, &req, "RecordSale") {
		return
	}

	client, err := h.clientService.RecordSale(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondClientError(c, err, "RecordSale", "Error registrando venta")
		return
	}
	c.JSON(http.StatusOK, client)
}

// RecordMessage handles POST /clients/:id/mensaje.
func (h *ClientHandler) RecordMessage(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req services.RecordMessageRequest
	if !bindJSON(c, &req, "RecordMessage") {
		return
	}

	client, err := h.clientService.RecordMessage(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		respondClientError(c, err, "RecordMessage", "Error guardando mensaje")
		return
	}
	c.JSON(http.StatusOK, client)
}
