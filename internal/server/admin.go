package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/abrahamoflondon/innercircle/internal/access"
	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/abrahamoflondon/innercircle/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type issueKeyRequest struct {
	MemberID    string `json:"member_id"`
	Email       string `json:"email" binding:"omitempty,email,max=320"`
	DisplayName string `json:"display_name" binding:"max=200"`
	Tier        string `json:"tier" binding:"required"`
	TTLDays     int    `json:"ttl_days" binding:"min=0,max=365"`
}

type revokeKeyRequest struct {
	// Key is a raw key, a fingerprint or a key id.
	Key    string `json:"key" binding:"required,max=256"`
	Reason string `json:"reason" binding:"max=200"`
}

type suspendMemberRequest struct {
	Reason     string `json:"reason" binding:"required,max=500"`
	RevokeKeys bool   `json:"revoke_keys"`
}

type setTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type statsResponse struct {
	Members memberdomain.Stats    `json:"members"`
	Keys    accesskeydomain.Stats `json:"keys"`
}

func (s *Server) IssueKey(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	memberID, err := parseOptionalSnowflakeID(req.MemberID)
	if err != nil {
		AbortWithError(c, memberdomain.ErrInvalidMember)
		return
	}
	email := strings.TrimSpace(req.Email)
	if memberID == nil && email == "" {
		AbortWithError(c, newValidationError("member_id", "required", "member_id or email is required"))
		return
	}

	tier, err := access.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	issue := accesskeydomain.IssueRequest{
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Tier:        tier,
		TTL:         time.Duration(req.TTLDays) * 24 * time.Hour,
	}
	if memberID != nil {
		issue.MemberID = *memberID
		issue.Email = ""
	}

	result, err := s.accessKeySvc.Issue(c.Request.Context(), issue)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) RevokeKey(c *gin.Context) {
	var req revokeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	revoked, err := s.accessKeySvc.Revoke(c.Request.Context(), req.Key, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

func (s *Server) RenewKey(c *gin.Context) {
	keyID, err := pathID(c, "id", accesskeydomain.ErrInvalidKeyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.accessKeySvc.Renew(c.Request.Context(), keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListMemberKeys(c *gin.Context) {
	memberID, err := pathID(c, "id", memberdomain.ErrInvalidMember)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.memberSvc.Get(ctx, memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	keys, err := s.accessKeySvc.ListForMember(ctx, memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (s *Server) SuspendMember(c *gin.Context) {
	memberID, err := pathID(c, "id", memberdomain.ErrInvalidMember)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req suspendMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	ctx := c.Request.Context()
	member, err := s.memberSvc.Suspend(ctx, memberID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var revoked int64
	if req.RevokeKeys {
		revoked, err = s.accessKeySvc.RevokeAllForMember(ctx, memberID, accesskeydomain.RevokeReasonMemberSuspended)
		if err != nil {
			// the suspension is not rolled back
			logger.FromContext(ctx).Error("revoke keys after suspension failed",
				zap.String("member_id", memberID.String()),
				zap.Error(err),
			)
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"member": member, "revoked_keys": revoked})
}

func (s *Server) ReinstateMember(c *gin.Context) {
	memberID, err := pathID(c, "id", memberdomain.ErrInvalidMember)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.memberSvc.Reinstate(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (s *Server) SetMemberTier(c *gin.Context) {
	memberID, err := pathID(c, "id", memberdomain.ErrInvalidMember)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tier, err := access.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.memberSvc.SetTier(c.Request.Context(), memberID, tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (s *Server) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	members, err := s.memberSvc.Stats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	keys, err := s.accessKeySvc.Stats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, statsResponse{Members: members, Keys: keys})
}
