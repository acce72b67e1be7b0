package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/model"
	"github.com/vyrodovalexey/localbackend/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// requestError is a client input error whose message is safe to return.
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

var (
	errMissingBody  = &requestError{message: msgBodyRequired}
	errInvalidJSON  = &requestError{message: msgInvalidJSON}
	errBodyTooLarge = &requestError{message: msgBodyTooLarge}
)

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	store        store.Store
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewRESTHandler creates a new RESTHandler instance. A non-positive
// maxBodyBytes selects DefaultMaxBodyBytes.
func NewRESTHandler(s store.Store, logger *zap.Logger, maxBodyBytes int64) *RESTHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	return &RESTHandler{
		store:        s,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/items", h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc("/api/items/{id}", h.GetItem).Methods(http.MethodGet)
	router.HandleFunc("/api/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	router.HandleFunc("/api/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
	// Anything else below /api/items/ has an id that is not a single integer.
	router.HandleFunc("/api/items/{rest:.*}", h.InvalidItemPath).
		Methods(http.MethodGet, http.MethodPut, http.MethodDelete)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ReadyCheck handles GET /ready requests. The service is ready when the
// item collection can be read from its backend.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.List(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready"})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListItems handles GET /api/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "list items")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, items)
}

// GetItem handles GET /api/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, item)
}

// CreateItem handles POST /api/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	body, err := h.readObject(w, r)
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}

	name, err := stringField(body, "name")
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}
	description, err := stringField(body, "description")
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}

	item, err := h.store.Create(r.Context(), deref(name), deref(description))
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}

	h.logger.Debug("item created", zap.Int("id", item.ID))
	writeJSON(w, h.logger, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id} requests. An unknown ID is
// reported before the body is inspected.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := itemID(r)
	if err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	if _, err := h.store.Get(ctx, id); err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	body, err := h.readObject(w, r)
	if err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	var patch model.ItemPatch
	if patch.Name, err = stringField(body, "name"); err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}
	if patch.Description, err = stringField(body, "description"); err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	item, err := h.store.Update(ctx, id, patch)
	if err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.handleStoreError(w, err, "delete item")
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "delete item")
		return
	}
	if !deleted {
		writeError(w, h.logger, http.StatusNotFound, msgItemNotFound)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.MessageResponse{Message: msgItemDeleted})
}

// handleStoreError handles store and request errors and writes appropriate HTTP responses.
// Client input errors become 400 and unexpected failures a 500 without detail.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	var reqErr *requestError

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, msgItemNotFound)
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, h.logger, http.StatusBadRequest, msgInvalidID)
	case errors.Is(err, model.ErrEmptyName):
		writeError(w, h.logger, http.StatusBadRequest, msgNameRequired)
	case errors.As(err, &reqErr):
		h.logger.Debug("rejected request", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, reqErr.message)
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, msgInternal)
	}
}

// readObject reads the request body and parses it as a JSON object.
func (h *RESTHandler) readObject(w http.ResponseWriter, r *http.Request) (gjson.Result, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return gjson.Result{}, errBodyTooLarge
		}
		return gjson.Result{}, fmt.Errorf("reading request body: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Result{}, errMissingBody
	}

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errInvalidJSON
	}

	body := gjson.ParseBytes(data)
	if !body.IsObject() {
		return gjson.Result{}, errInvalidJSON
	}

	return body, nil
}

// stringField returns the named string field of body. A missing or null
// field yields nil; any other non-string value is a request error.
func stringField(body gjson.Result, field string) (*string, error) {
	value := body.Get(field)
	if !value.Exists() || value.Type == gjson.Null {
		return nil, nil
	}

	if value.Type != gjson.String {
		return nil, &requestError{message: fmt.Sprintf("Field '%s' must be a string", field)}
	}

	s := value.String()
	return &s, nil
}

// InvalidItemPath rejects item paths such as /api/items/ or /api/items/1/2.
func (h *RESTHandler) InvalidItemPath(w http.ResponseWriter, _ *http.Request) {
	writeError(w, h.logger, http.StatusBadRequest, msgInvalidID)
}

// itemID parses the {id} path variable.
func itemID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrInvalidID, err)
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
