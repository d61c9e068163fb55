package role

import (
	"github.com/Kyz7/identity/internal/response"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the role routes on r; write guards the mutating ones.
func (h *Handler) Register(r fiber.Router, write fiber.Handler) {
	r.Get("/", h.List)
	r.Get("/search", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/:id", h.Get)
	r.Get("/:id/users", h.Users)
	r.Post("/", write, h.Create)
	r.Put("/:id", write, h.Update)
	r.Patch("/:id", write, h.Patch)
	r.Delete("/:id", write, h.Delete)
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var body Input
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	role, err := h.svc.Create(c.UserContext(), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, role, "Role created successfully")
}

// List returns every role, or those matching ?q= when given.
// ?with_user_count=true adds the number of holders to each role.
func (h *Handler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if c.QueryBool("with_user_count") {
		usage, err := h.svc.ListWithUserCount(ctx)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.Success(c, usage, "Roles retrieved successfully")
	}
	if q := c.Query("q"); q != "" {
		roles, err := h.svc.Search(ctx, q)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.Success(c, roles, "Roles retrieved successfully")
	}

	roles, err := h.svc.List(ctx)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, roles, "Roles retrieved successfully")
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid role ID", nil)
	}

	role, err := h.svc.Get(c.UserContext(), uint(id))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, role, "Role retrieved successfully")
}

func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid role ID", nil)
	}

	var body Input
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	role, err := h.svc.Update(c.UserContext(), uint(id), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, role, "Role updated successfully")
}

func (h *Handler) Patch(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid role ID", nil)
	}

	var body PatchInput
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	role, err := h.svc.Patch(c.UserContext(), uint(id), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, role, "Role updated successfully")
}

func (h *Handler) Users(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid role ID", nil)
	}

	users, err := h.svc.Users(c.UserContext(), uint(id))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, users, "Role users retrieved successfully")
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid role ID", nil)
	}

	if err := h.svc.Delete(c.UserContext(), uint(id)); err != nil {
		return response.FromError(c, err)
	}
	return response.NoContent(c)
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	st, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, st, "Role statistics retrieved successfully")
}
