package handlers

import (
	"io"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse form")
	}

	files, err := readFiles(form.File["files"])
	if err != nil {
		slog.Error(err.Error())
		return errorJSON(c, fiber.StatusBadRequest, "Unable to read files")
	}

	draft, _ := strconv.ParseBool(c.FormValue("draft"))
	post, err := h.s.Schedule(c.Context(), userID, &transfer.PostCreation{
		Body:          c.FormValue("body"),
		Platforms:     splitPlatforms(form.Value["platforms"]),
		ScheduledTime: c.FormValue("scheduled_time"),
		Draft:         draft,
	}, files)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid post id")
	}

	details, err := h.s.Get(c.Context(), GetUserID(c), int64(postID))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(details)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid post id")
	}

	if err := h.s.Cancel(c.Context(), GetUserID(c), int64(postID)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// splitPlatforms accepts repeated fields as well as comma separated values.
func splitPlatforms(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func readFiles(headers []*multipart.FileHeader) ([][]byte, error) {
	files := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}
