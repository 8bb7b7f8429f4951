package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/tracker"
)

// handleListTasks fetches one filtered page of a project's tasks.
func (s *Server) handleListTasks(c *gin.Context) {
	var req tracker.ListTasksInput
	if err := c.ShouldBindQuery(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	tasks, page, err := s.tracker.ListTasks(c.Request.Context(), actor(c), c.Param("projectId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks, "pagination": page})
}

// handleCreateTask inserts a new task into a project.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req tracker.CreateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	task, err := s.tracker.CreateTask(c.Request.Context(), actor(c), c.Param("projectId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tracker.GetTask(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask applies a partial update; status is set without workflow checks.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req tracker.UpdateTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	task, err := s.tracker.UpdateTask(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTaskStatus moves a task along the guided workflow.
func (s *Server) handleUpdateTaskStatus(c *gin.Context) {
	var req tracker.UpdateStatusInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	task, err := s.tracker.UpdateTaskStatus(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task without subtasks.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tracker.DeleteTask(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleTaskHistory(c *gin.Context) {
	history, err := s.tracker.ListTaskHistory(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": history})
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req tracker.AddCommentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	comment, err := s.tracker.AddComment(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"comment": comment})
}

func (s *Server) handleListReports(c *gin.Context) {
	reports, err := s.tracker.ListReports(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var req tracker.SubmitReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	report, err := s.tracker.SubmitReport(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"report": report})
}

// handleReviewReport approves or rejects a pending report.
func (s *Server) handleReviewReport(c *gin.Context) {
	var req tracker.ReviewReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	report, err := s.tracker.ReviewReport(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("taskId"), c.Param("reportId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"report": report})
}
