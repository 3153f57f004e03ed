package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/course"
)

type createCourseRequest struct {
	Code        string    `json:"code" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	TeacherID   uuid.UUID `json:"teacher_id" binding:"required"`
	Description string    `json:"description"`
}

// CreateCourse registers a course with its assigned teacher.
func (h *Handler) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	crs := &course.Course{
		Code:        req.Code,
		Name:        req.Name,
		TeacherID:   req.TeacherID,
		Description: req.Description,
	}
	created, err := h.courses.Create(c.Request.Context(), crs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetCourse returns one course.
func (h *Handler) GetCourse(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	crs, err := h.courses.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crs)
}

// ListCourses returns courses, optionally filtered by teacher.
func (h *Handler) ListCourses(c *gin.Context) {
	teacherStr := c.Query("teacher_id")
	if teacherStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "teacher_id query parameter required"})
		return
	}
	teacherID, err := uuid.Parse(teacherStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid teacher id"})
		return
	}
	courses, err := h.courses.ListByTeacher(c.Request.Context(), teacherID)
	if err != nil {
		respondError(c, err)
		return
	}
	if courses == nil {
		courses = []course.Course{}
	}
	c.JSON(http.StatusOK, courses)
}

// DeactivateCourse soft-deletes a course.
func (h *Handler) DeactivateCourse(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	if err := h.courses.Deactivate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
