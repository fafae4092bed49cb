package posts

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/media"
	"github.com/pulseboard/pulseboard/internal/platform/httpx"
)

// Handler manages post, comment, vote and media endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	store          media.BlobStore
	mw             authz.Middleware
	maxUploadBytes int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store media.BlobStore, mw authz.Middleware, maxUploadBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		store:          store,
		mw:             mw,
		maxUploadBytes: maxUploadBytes,
	}
}

// MountRoutes registers post routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/posts", h.feed)
	r.Get("/posts/{postID}", h.show)
	r.Get("/posts/{postID}/comments", h.listComments)
	r.Get("/media/{name}", h.serveMedia)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated)
		r.Post("/posts", h.create)
		r.Delete("/posts/{postID}", h.delete)
		r.Post("/posts/{postID}/recover", h.recover)
		r.Put("/posts/{postID}/vote", h.vote)
		r.Post("/posts/{postID}/comments", h.addComment)
		r.Delete("/comments/{commentID}", h.deleteComment)
	})
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	feed, err := h.service.Feed(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list feed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if feed == nil {
		feed = []Post{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posts": feed})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	post, err := h.service.Get(r.Context(), authz.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

// create accepts either multipart/form-data with an optional "media" part or
// a plain JSON body with no upload.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())

	var (
		input  CreatePostInput
		upload *Upload
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		input.Title = r.FormValue("title")
		input.Body = r.FormValue("body")
		file, header, err := r.FormFile("media")
		switch {
		case err == nil:
			defer file.Close()
			upload = &Upload{File: file, Filename: header.Filename}
		case errors.Is(err, http.ErrMissingFile):
		default:
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	} else {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
	}

	post, err := h.service.Create(r.Context(), actor, input, upload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.Delete(r.Context(), authz.ActorFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.Recover(r.Context(), authz.ActorFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "recovered"})
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req struct {
		Value int `json:"value"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	score, err := h.service.ToggleVote(r.Context(), authz.ActorFromContext(r.Context()), id, req.Value)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"score": score})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	comments, err := h.service.Comments(r.Context(), authz.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if comments == nil {
		comments = []Comment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var input CommentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	comment, err := h.service.AddComment(r.Context(), authz.ActorFromContext(r.Context()), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "commentID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.DeleteComment(r.Context(), authz.ActorFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// serveMedia streams a stored blob. Names come from post rows, never from
// client paths; the store refuses anything else.
func (h *Handler) serveMedia(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	defer f.Close()

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, "", time.Time{}, f)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
