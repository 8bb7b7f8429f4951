package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/tracker"
)

// handleListProjects returns the caller's projects, one page at a time.
func (s *Server) handleListProjects(c *gin.Context) {
	var req tracker.ListProjectsInput
	if err := c.ShouldBindQuery(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	projects, page, err := s.tracker.ListProjects(c.Request.Context(), actor(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects, "pagination": page})
}

// handleCreateProject creates a project managed by the caller.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req tracker.CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	project, err := s.tracker.CreateProject(c.Request.Context(), actor(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.tracker.GetProject(c.Request.Context(), actor(c), c.Param("projectId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleUpdateProject changes project fields. PM only.
func (s *Server) handleUpdateProject(c *gin.Context) {
	var req tracker.UpdateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	project, err := s.tracker.UpdateProject(c.Request.Context(), actor(c), c.Param("projectId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleDeleteProject removes a project and everything in it.
func (s *Server) handleDeleteProject(c *gin.Context) {
	if err := s.tracker.DeleteProject(c.Request.Context(), actor(c), c.Param("projectId")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.tracker.ListMembers(c.Request.Context(), actor(c), c.Param("projectId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"members": members})
}

func (s *Server) handleAddMember(c *gin.Context) {
	var req tracker.AddMemberInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	member, err := s.tracker.AddMember(c.Request.Context(), actor(c), c.Param("projectId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"member": member})
}

func (s *Server) handleUpdateMemberRole(c *gin.Context) {
	var req tracker.UpdateMemberRoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	member, err := s.tracker.UpdateMemberRole(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("userId"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"member": member})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	if err := s.tracker.RemoveMember(c.Request.Context(), actor(c), c.Param("projectId"), c.Param("userId")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "removed"})
}
