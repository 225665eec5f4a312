package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/services"
)

// respondError maps a service error onto the API error shape
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		external   *services.ExternalServiceError
		auth       *services.AuthorizationError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": notFound.Error()})
	case errors.As(err, &auth):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Admin access required"})
	case errors.As(err, &external):
		logger.WithError(err).Warn("External service failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "message": external.Service + " is unavailable, try again later"})
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
	}
}

// chatErrorText is the admin-facing reply for a failed chat command
func chatErrorText(err error) string {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		external   *services.ExternalServiceError
	)

	switch {
	case errors.As(err, &validation):
		return "Invalid input: " + validation.Error()
	case errors.As(err, &notFound):
		return "Not found: " + notFound.Error()
	case services.IsAuthorizationError(err):
		return "This command is for admins only."
	case errors.As(err, &external):
		return "Could not reach " + external.Service + ". Please try again."
	}
	return "Something went wrong. Check the logs."
}
