package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/webhook"
)

type verificationResultPayload struct {
	OverallResult *struct {
		VerificationPassed *bool  `json:"verification_passed"`
		Reason             string `json:"reason"`
	} `json:"overall_result"`
}

// verificationResult receives the verifier's signed callback. Signature
// verification runs over the raw body before anything is parsed or any
// state is touched.
func (d Deps) verificationResult(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body failed"})
		return
	}
	signature := c.GetHeader("X-Webhook-Signature")
	if !d.Correlator.ValidSignature(body, signature) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid webhook signature"})
		return
	}

	var payload verificationResultPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.OverallResult == nil || payload.OverallResult.VerificationPassed == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed payload"})
		return
	}

	verificationID := c.Param("verification_id")
	result, err := d.Correlator.Apply(c.Request.Context(), verificationID, *payload.OverallResult.VerificationPassed, payload.OverallResult.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "applying verdict failed"})
		return
	}
	switch result {
	case webhook.Applied:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case webhook.Unknown:
		c.JSON(http.StatusOK, gin.H{"status": "already processed or unknown"})
	case webhook.RecordGone:
		c.JSON(http.StatusNotFound, gin.H{"error": "attendance record not found"})
	}
}
