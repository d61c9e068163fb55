package user

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

func (h *Handler) Register(r fiber.Router, write fiber.Handler) {
	r.Get("/", h.List)
	r.Get("/search", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/:id", h.Get)
	r.Get("/:id/roles", h.Roles)
	r.Post("/", write, h.Create)
	r.Put("/:id", write, h.Update)
	r.Patch("/:id", write, h.Update)
	r.Delete("/:id", write, h.Delete)
	r.Put("/:id/roles", write, h.SetRoles)
	r.Post("/:id/roles/:roleId", write, h.AddRole)
	r.Delete("/:id/roles/:roleId", write, h.RemoveRole)
}

func (h *Handler) List(c *fiber.Ctx) error {
	page, err := h.svc.List(c.UserContext(), c.Query("q"), c.QueryInt("page", 1), c.QueryInt("limit", DefaultPageSize))
	if err != nil {
		return response.FromError(c, err)
	}
	meta := response.CalculateMeta(page.Page, page.Limit, page.Total)
	return response.SuccessWithMeta(c, page.Users, meta, "Users retrieved successfully")
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID", nil)
	}

	u, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "User retrieved successfully")
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	st, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, st, "User statistics retrieved successfully")
}

func (h *Handler) Roles(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID", nil)
	}

	roles, err := h.svc.Roles(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, roles, "User roles retrieved successfully")
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var body CreateInput
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	u, err := h.svc.Create(c.UserContext(), body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, u, "User created successfully")
}

func (h *Handler) Update(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID", nil)
	}

	var body UpdateInput
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}

	u, err := h.svc.Update(c.UserContext(), id, body)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "User updated successfully")
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID", nil)
	}

	if current, _ := c.Locals("user_id").(uint); current == id {
		return response.BadRequest(c, "Cannot delete your own account", nil)
	}

	if err := h.svc.Delete(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	return response.NoContent(c)
}

func (h *Handler) SetRoles(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID", nil)
	}

	var body struct {
		RoleIDs []uint `json:"role_ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body", nil)
	}
	if body.RoleIDs == nil {
		return response.ValidationError(c, map[string]string{"role_ids": "role_ids is required"})
	}

	u, err := h.svc.SetRoles(c.UserContext(), id, body.RoleIDs)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "User roles updated successfully")
}

func (h *Handler) AddRole(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	roleID, rok := paramID(c, "roleId")
	if !ok || !rok {
		return response.BadRequest(c, "Invalid user or role ID", nil)
	}

	u, err := h.svc.AddRole(c.UserContext(), id, roleID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "Role assigned successfully")
}

func (h *Handler) RemoveRole(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	roleID, rok := paramID(c, "roleId")
	if !ok || !rok {
		return response.BadRequest(c, "Invalid user or role ID", nil)
	}

	u, err := h.svc.RemoveRole(c.UserContext(), id, roleID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, u, "Role removed successfully")
}

func paramID(c *fiber.Ctx, key string) (uint, bool) {
	id, err := c.ParamsInt(key)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
