// Package webhook receives GitHub push/repository events and keeps a
// minimal slice of project metadata (stars, names, links) fresh between
// full indexer runs. It writes to the same projects table as the pipeline
// but only ever touches the columns it is trusted with.
package webhook

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	gh "github.com/google/go-github/v61/github"

	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/store"
)

// Handler verifies webhook signatures and upserts the repository ref.
type Handler struct {
	store  store.Store
	secret string
	log    *logger.Logger
}

// NewHandler returns a handler validating against the shared secret.
func NewHandler(st store.Store, secret string, log *logger.Logger) *Handler {
	return &Handler{
		store:  st,
		secret: secret,
		log:    log.With("service", "WebhookHandler"),
	}
}

// Register mounts the webhook endpoint on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Post("/", h.handle)
}

type payload struct {
	Repository struct {
		ID              int64  `json:"id"`
		FullName        string `json:"full_name"`
		HTMLURL         string `json:"html_url"`
		StargazersCount int    `json:"stargazers_count"`
	} `json:"repository"`
}

func (h *Handler) handle(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get("X-Hub-Signature-256")

	if err := gh.ValidateSignature(signature, body, []byte(h.secret)); err != nil {
		h.log.Warn("rejected webhook with bad signature", "error", err.Error())
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var event payload
	if err := json.Unmarshal(body, &event); err != nil || event.Repository.ID == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid webhook payload")
	}

	repo := event.Repository
	if err := h.store.UpsertProjectRef(c.UserContext(), repo.ID, repo.FullName, repo.HTMLURL, repo.StargazersCount); err != nil {
		h.log.Error("webhook upsert failed", "repo", repo.FullName, "error", err.Error())
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	h.log.Info("webhook upsert", "repo", repo.FullName, "stars", repo.StargazersCount)
	return c.SendStatus(fiber.StatusOK)
}
