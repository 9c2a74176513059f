package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/abrahamoflondon/innercircle/internal/access"
	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	"github.com/abrahamoflondon/innercircle/internal/observability/logger"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const contentPathPrefix = "/content/"

type verifyKeyRequest struct {
	Key string `json:"key"`
}

type documentRequest struct {
	Slug                string   `json:"slug" binding:"required,max=200"`
	Tiers               []string `json:"tiers" binding:"max=16"`
	RequiresInnerCircle bool     `json:"requires_inner_circle"`
	Internal            bool     `json:"internal"`
}

func (r documentRequest) document() access.Document {
	return access.Document{
		Slug:                strings.TrimSpace(r.Slug),
		Tiers:               r.Tiers,
		RequiresInnerCircle: r.RequiresInnerCircle,
		Internal:            r.Internal,
	}
}

type documentCheckResponse struct {
	Slug string `json:"slug"`
	access.DocumentDecision
}

type filterDocumentsRequest struct {
	Documents []documentRequest `json:"documents" binding:"required,max=200,dive"`
}

// VerifyKey checks a presented key and, when valid, starts a cookie session
// that never outlives the key.
func (s *Server) VerifyKey(c *gin.Context) {
	var req verifyKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, bindingError(err))
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = presentedKey(c)
	}

	result, err := s.accessKeySvc.Verify(c.Request.Context(), key, originFrom(c))
	if err != nil {
		c.Set(contextOutcomeKey, outcomeUnavailable)
		AbortWithError(c, err)
		return
	}

	switch result.Reason {
	case accesskeydomain.ReasonEmpty:
		c.Set(contextOutcomeKey, result.Reason)
		AbortWithError(c, newValidationError("key", "required", "key is required"))
		return
	case accesskeydomain.ReasonInvalidFormat:
		logger.FromContext(c.Request.Context()).Debug("malformed key rejected", logger.KeyHint(key))
		c.Set(contextOutcomeKey, result.Reason)
		AbortWithError(c, newValidationError("key", "invalid_format", "key format is not recognized"))
		return
	}

	if !result.Valid {
		c.Set(contextOutcomeKey, result.Reason)
		c.JSON(http.StatusOK, result)
		return
	}

	c.Set(contextOutcomeKey, outcomeValid)
	c.Set(contextAccessTierKey, string(result.Tier))
	s.startSession(c, result)
	c.JSON(http.StatusOK, result)
}

func (s *Server) startSession(c *gin.Context, result accesskeydomain.VerificationResult) {
	if s.sessions == nil {
		return
	}
	log := logger.FromContext(c.Request.Context())

	keyID, err := snowflake.ParseString(result.KeyID)
	if err != nil {
		log.Warn("session not issued", zap.Error(err))
		return
	}
	memberID, err := snowflake.ParseString(result.MemberID)
	if err != nil {
		log.Warn("session not issued", zap.Error(err))
		return
	}

	token, expiresAt, err := s.sessions.Issue(keyID, memberID, s.clock.Now(), result.ExpiresAt)
	if err != nil {
		log.Warn("session not issued", zap.Error(err))
		return
	}
	s.sessions.Set(c, token, expiresAt)
}

func (s *Server) Logout(c *gin.Context) {
	if s.sessions != nil {
		s.sessions.Clear(c)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetDecision answers with the caller's resolved access. Store faults arrive
// here as a denied decision, never as an error.
func (s *Server) GetDecision(c *gin.Context) {
	c.JSON(http.StatusOK, decisionFromContext(c))
}

func (s *Server) CheckDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	doc := req.document()
	returnTo, ok := contentPath(doc.Slug)
	if !ok {
		AbortWithError(c, newValidationError("slug", "invalid_slug", "invalid slug"))
		return
	}

	result := access.CheckDocumentAccess(decisionFromContext(c), doc, returnTo)
	c.JSON(http.StatusOK, documentCheckResponse{
		Slug:             doc.Slug,
		DocumentDecision: result,
	})
}

// FilterDocuments keeps the documents the caller may open, in request order.
func (s *Server) FilterDocuments(c *gin.Context) {
	var req filterDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	docs := make([]access.Document, 0, len(req.Documents))
	for _, item := range req.Documents {
		docs = append(docs, item.document())
	}
	visible := access.FilterByAccess(decisionFromContext(c), docs)
	c.JSON(http.StatusOK, gin.H{"data": visible})
}

func contentPath(raw string) (string, bool) {
	normalized := slug.Make(raw)
	if normalized == "" {
		return "", false
	}
	return contentPathPrefix + normalized, true
}
