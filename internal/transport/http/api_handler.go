package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"flipiq-service/internal/app"
	"flipiq-service/internal/domain"
)

// StatusChecker resolves a join code to session flags. In production this is
// the Redis status cache; without Redis it is the session manager directly.
type StatusChecker interface {
	CheckStatus(ctx context.Context, code string) (domain.SessionStatus, error)
}

// APIHandler exposes the polling API. Authentication is handled upstream;
// the authenticated user id arrives in the X-User-ID header.
type APIHandler struct {
	catalog  *app.DeckCatalog
	sessions *app.SessionManager
	tracker  *app.ParticipantTracker
	scoring  *app.ScoringEngine
	status   *app.StatusService
	checker  StatusChecker
}

func NewAPIHandler(
	catalog *app.DeckCatalog,
	sessions *app.SessionManager,
	tracker *app.ParticipantTracker,
	scoring *app.ScoringEngine,
	status *app.StatusService,
	checker StatusChecker,
) *APIHandler {
	if checker == nil {
		checker = sessions
	}
	return &APIHandler{
		catalog:  catalog,
		sessions: sessions,
		tracker:  tracker,
		scoring:  scoring,
		status:   status,
		checker:  checker,
	}
}

// Register wires every route onto the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /decks", h.createDeck)
	mux.HandleFunc("GET /decks", h.listDecks)
	mux.HandleFunc("GET /decks/public", h.listPublicDecks)
	mux.HandleFunc("GET /decks/{id}", h.getDeck)
	mux.HandleFunc("PUT /decks/{id}", h.updateDeck)
	mux.HandleFunc("DELETE /decks/{id}", h.deleteDeck)
	mux.HandleFunc("POST /decks/{id}/publish", h.publishDeck)
	mux.HandleFunc("POST /decks/{id}/cards", h.addCard)
	mux.HandleFunc("PUT /cards/{id}", h.updateCard)
	mux.HandleFunc("DELETE /cards/{id}", h.deleteCard)

	mux.HandleFunc("POST /decks/{id}/start_session", h.startSession)
	mux.HandleFunc("POST /decks/{id}/start_quiz", h.startQuiz)
	mux.HandleFunc("POST /decks/{id}/end_session", h.endSession)
	mux.HandleFunc("GET /check_session/{code}", h.checkSession)
	mux.HandleFunc("GET /decks/{id}/status", h.deckStatus)
	mux.HandleFunc("POST /join_by_code", h.joinByCode)
	mux.HandleFunc("POST /decks/{id}/submit_answer", h.submitAnswer)
	mux.HandleFunc("GET /decks/{id}/session_status", h.sessionStatus)
	mux.HandleFunc("GET /decks/{id}/participants/{sessionID}", h.participants)
	mux.HandleFunc("POST /participants/{id}/kick", h.kickParticipant)
	mux.HandleFunc("POST /decks/{id}/reset_progress/{sessionID}", h.resetProgress)
	mux.HandleFunc("GET /decks/{id}/result/{sessionID}", h.deckResult)
}

// --- deck authoring ---

func (h *APIHandler) createDeck(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var in app.DeckInput
	if !decodeBody(w, r, &in) {
		return
	}
	deck, err := h.catalog.CreateDeck(r.Context(), caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}

func (h *APIHandler) listDecks(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	decks, err := h.catalog.ListDecks(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

func (h *APIHandler) listPublicDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := h.catalog.ListPublicDecks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

func (h *APIHandler) getDeck(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	deck, err := h.catalog.GetDeck(r.Context(), deckID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (h *APIHandler) updateDeck(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.DeckInput
	if !decodeBody(w, r, &in) {
		return
	}
	deck, err := h.catalog.UpdateDeck(r.Context(), deckID, caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (h *APIHandler) deleteDeck(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteDeck(r.Context(), deckID, caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) publishDeck(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Public bool `json:"public"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.catalog.SetPublished(r.Context(), deckID, caller, body.Public); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) addCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.CardInput
	if !decodeBody(w, r, &in) {
		return
	}
	card, err := h.catalog.AddCard(r.Context(), deckID, caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (h *APIHandler) updateCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.CardInput
	if !decodeBody(w, r, &in) {
		return
	}
	card, err := h.catalog.UpdateCard(r.Context(), cardID, caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *APIHandler) deleteCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCard(r.Context(), cardID, caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- session lifecycle ---

func (h *APIHandler) startSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.sessions.StartSession(r.Context(), deckID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":      session.Code,
		"sessionId": session.ID,
	})
}

func (h *APIHandler) startQuiz(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.sessions.StartQuiz(r.Context(), deckID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessionId": session.ID})
}

func (h *APIHandler) endSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ended, err := h.sessions.EndSession(r.Context(), deckID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ended})
}

func (h *APIHandler) checkSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	status, err := h.checker.CheckStatus(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"is_started": status.IsStarted,
		"is_active":  status.IsActive,
	})
}

func (h *APIHandler) deckStatus(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := h.status.DeckStatus(r.Context(), deckID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"active":     status.IsActive,
		"is_started": status.IsStarted,
	})
}

func (h *APIHandler) joinByCode(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Code == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	joined, err := h.sessions.JoinByCode(r.Context(), body.Code)
	if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionInactive) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid or inactive code"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := h.sessions.GetSession(r.Context(), joined.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.tracker.JoinOrGet(r.Context(), session, caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deckId":    joined.DeckID,
		"sessionId": joined.SessionID,
		"deckTitle": joined.DeckTitle,
	})
}

// --- play ---

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		SessionID int64  `json:"sessionId"`
		CardID    int64  `json:"cardId"`
		Choice    string `json:"choice"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.SessionID == 0 || body.CardID == 0 {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	outcome, err := h.scoring.RecordAnswer(r.Context(), deckID, body.SessionID, caller, body.CardID, body.Choice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *APIHandler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	dashboard, err := h.status.Dashboard(r.Context(), deckID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *APIHandler) participants(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	views, err := h.status.Participants(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	names := make([]map[string]string, 0, len(views))
	for _, v := range views {
		names = append(names, map[string]string{"name": v.Name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": names})
}

// kickParticipant reports failure in the body rather than a status code; the
// host dashboard shows the text and keeps polling.
func (h *APIHandler) kickParticipant(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	participantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tracker.Kick(r.Context(), participantID); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) resetProgress(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	if err := h.scoring.Reset(r.Context(), deckID, sessionID, caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) deckResult(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	deckID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	result, err := h.status.Result(r.Context(), deckID, sessionID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- plumbing ---

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-ID"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid X-User-ID"})
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps core errors onto the polling API's status codes. An
// unowned deck reads as absent rather than forbidden, so probing ids leaks
// nothing.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDeckNotFound),
		errors.Is(err, domain.ErrCardNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotDeckOwner):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionInactive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
