package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nycdangermap/incident-engine/internal/correlate"
	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/engine"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// userHeader names the authenticated caller. Authentication itself lives in
// the upstream gateway; the engine trusts this header.
const userHeader = "X-User-ID"

const defaultPopularLimit = 10

// EngineAPI is the slice of engine operations the HTTP layer exposes.
type EngineAPI interface {
	SubmitReport(ctx context.Context, input engine.ReportInput) (domain.Post, error)
	NearbyPosts(ctx context.Context, origin domain.Geo, radiusMiles float64) ([]proximity.Match, error)
	VisiblePosts(ctx context.Context) ([]domain.Post, error)
	PostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]domain.Post, error)
	PopularPosts(ctx context.Context, limit int64) ([]domain.Post, error)
	UpdatePost(ctx context.Context, postID, requesterID primitive.ObjectID, update engine.PostUpdate) error
	DeletePost(ctx context.Context, postID, requesterID primitive.ObjectID) error
	AddComment(ctx context.Context, postID, authorID primitive.ObjectID, text string, commentScore float64) (domain.Comment, error)
	DeleteComment(ctx context.Context, commentID, requesterID primitive.ObjectID) error
	RatePost(ctx context.Context, postID, userID primitive.ObjectID, value float64) error
	FlagPost(ctx context.Context, postID, reporterID primitive.ObjectID, flagTypes []string, text string) error
	Notifications(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error)
	UnreadNotificationCount(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID primitive.ObjectID) error
	MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID primitive.ObjectID) error
}

// IncidentAPI is the correlation surface the HTTP layer exposes.
type IncidentAPI interface {
	Resolve(ctx context.Context, inc domain.ExternalIncident) (correlate.Resolution, error)
	StartDiscussion(ctx context.Context, inc domain.ExternalIncident, authorID primitive.ObjectID, commentText string, commentScore float64) (domain.Post, error)
}

// IncidentFeed yields current external incidents for the listing endpoint.
type IncidentFeed interface {
	FetchRecent(ctx context.Context) ([]domain.ExternalIncident, error)
}

// API serves the engine's JSON endpoints.
type API struct {
	engine    EngineAPI
	incidents IncidentAPI
	feed      IncidentFeed
	logger    *slog.Logger
}

// NewAPI creates the JSON API handler set.
func NewAPI(eng EngineAPI, incidents IncidentAPI, feed IncidentFeed, logger *slog.Logger) *API {
	return &API{
		engine:    eng,
		incidents: incidents,
		feed:      feed,
		logger:    logger,
	}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", a.handleSubmitReport)
	mux.HandleFunc("GET /api/posts", a.handleListPosts)
	mux.HandleFunc("GET /api/posts/nearby", a.handleNearbyPosts)
	mux.HandleFunc("GET /api/posts/popular", a.handlePopularPosts)
	mux.HandleFunc("GET /api/posts/user/{id}", a.handlePostsByAuthor)
	mux.HandleFunc("PATCH /api/posts/{id}", a.handleUpdatePost)
	mux.HandleFunc("DELETE /api/posts/{id}", a.handleDeletePost)
	mux.HandleFunc("POST /api/posts/{id}/comments", a.handleAddComment)
	mux.HandleFunc("DELETE /api/comments/{id}", a.handleDeleteComment)
	mux.HandleFunc("PUT /api/posts/{id}/rating", a.handleRatePost)
	mux.HandleFunc("POST /api/posts/{id}/flags", a.handleFlagPost)
	mux.HandleFunc("GET /api/notifications", a.handleNotifications)
	mux.HandleFunc("GET /api/notifications/unread-count", a.handleUnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", a.handleMarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", a.handleMarkAllRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", a.handleDeleteNotification)
	mux.HandleFunc("GET /api/incidents", a.handleListIncidents)
	mux.HandleFunc("POST /api/incidents/discuss", a.handleDiscussIncident)
}

// --- request/response shapes ---

type reportRequest struct {
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Photo     string      `json:"photo"`
	Location  *domain.Geo `json:"location"`
	Address   string      `json:"address"`
	Sensitive bool        `json:"sensitive"`
	Anonymous bool        `json:"anonymous"`
}

type commentRequest struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type ratingRequest struct {
	Rating float64 `json:"rating"`
}

type flagRequest struct {
	Types []string `json:"type"`
	Text  string   `json:"text"`
}

type updatePostRequest struct {
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	Photo     *string `json:"photo"`
	Sensitive *bool   `json:"sensitive"`
	Anonymous *bool   `json:"anonymous"`
}

type incidentRequest struct {
	Key          string     `json:"incident_key"`
	Date         string     `json:"occur_date"`
	Time         string     `json:"occur_time"`
	Borough      string     `json:"boro"`
	LocationDesc string     `json:"location_desc"`
	Location     domain.Geo `json:"location"`
	CommentText  string     `json:"text"`
	CommentScore float64    `json:"score"`
}

func (r incidentRequest) incident() domain.ExternalIncident {
	return domain.ExternalIncident{
		Key:          r.Key,
		Date:         r.Date,
		Time:         r.Time,
		Borough:      r.Borough,
		LocationDesc: r.LocationDesc,
		Geo:          r.Location,
	}
}

type incidentResponse struct {
	Incident domain.ExternalIncident `json:"incident"`
	Linked   bool                    `json:"linked"`
	PostID   string                  `json:"postId,omitempty"`
}

type nearbyPostResponse struct {
	Post     domain.Post `json:"post"`
	Distance float64     `json:"distance"`
}

// --- handlers ---

func (a *API) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if !a.decode(w, r, &req) {
		return
	}

	post, err := a.engine.SubmitReport(r.Context(), engine.ReportInput{
		AuthorID:  userID,
		Title:     req.Title,
		Body:      req.Body,
		Photo:     req.Photo,
		Location:  req.Location,
		Address:   req.Address,
		Sensitive: req.Sensitive,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := a.engine.VisiblePosts(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *API) handleNearbyPosts(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		a.writeError(w, domain.NewValidationError("location", "lat and lon query parameters are required"))
		return
	}
	radius := domain.DefaultNotificationRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		radius, err1 = strconv.ParseFloat(v, 64)
		if err1 != nil {
			a.writeError(w, domain.NewValidationError("radius", "must be a number"))
			return
		}
	}

	matches, err := a.engine.NearbyPosts(r.Context(), domain.Geo{Lat: lat, Lon: lon}, radius)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]nearbyPostResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, nearbyPostResponse{Post: m.Post, Distance: m.Distance})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handlePopularPosts(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultPopularLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			a.writeError(w, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	posts, err := a.engine.PopularPosts(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *API) handlePostsByAuthor(w http.ResponseWriter, r *http.Request) {
	authorID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	posts, err := a.engine.PostsByAuthor(r.Context(), authorID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	postID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req updatePostRequest
	if !a.decode(w, r, &req) {
		return
	}

	err := a.engine.UpdatePost(r.Context(), postID, userID, engine.PostUpdate{
		Title:     req.Title,
		Body:      req.Body,
		Photo:     req.Photo,
		Sensitive: req.Sensitive,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	postID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeletePost(r.Context(), postID, userID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	postID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !a.decode(w, r, &req) {
		return
	}

	comment, err := a.engine.AddComment(r.Context(), postID, userID, req.Text, req.Score)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *API) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	commentID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteComment(r.Context(), commentID, userID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	postID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.RatePost(r.Context(), postID, userID, req.Rating); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleFlagPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	postID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req flagRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.FlagPost(r.Context(), postID, userID, req.Types, req.Text); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	notifications, err := a.engine.Notifications(r.Context(), userID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	count, err := a.engine.UnreadNotificationCount(r.Context(), userID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	notificationID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.engine.MarkNotificationRead(r.Context(), userID, notificationID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	changed, err := a.engine.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": changed})
}

func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	notificationID, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteNotification(r.Context(), userID, notificationID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListIncidents returns the current feed with each incident's
// correlation state, so the map can deep-link existing discussions.
func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := a.feed.FetchRecent(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		res, err := a.incidents.Resolve(r.Context(), inc)
		if err != nil {
			a.writeError(w, err)
			return
		}
		item := incidentResponse{Incident: inc, Linked: res.Linked}
		if res.Linked {
			item.PostID = res.Post.ID.Hex()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDiscussIncident(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req incidentRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.CommentText != "" {
		if err := domain.ValidateCommentScore(req.CommentScore); err != nil {
			a.writeError(w, err)
			return
		}
	}

	post, err := a.incidents.StartDiscussion(r.Context(), req.incident(), userID, req.CommentText, req.CommentScore)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// --- helpers ---

func (a *API) caller(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(r.Header.Get(userHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "missing or malformed " + userHeader + " header",
		})
		return primitive.NilObjectID, false
	}
	return id, true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		a.writeError(w, domain.NewValidationError("id", "must be a valid object id"))
		return primitive.NilObjectID, false
	}
	return id, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, domain.NewValidationError("body", "malformed JSON"))
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalidAddress):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.IsExternal(err):
		a.logger.Error("upstream dependency failure", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream dependency failure"})
	default:
		a.logger.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
