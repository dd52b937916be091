// internal/handlers/common.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/royalty-backend/internal/i18n"
	"github.com/javajoker/royalty-backend/internal/models"
	"github.com/javajoker/royalty-backend/internal/utils"
)

func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+label+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.ValidationErrorResponse(c, "", map[string]string{name: name + " must be a UUID"})
		return nil, false
	}
	return &id, true
}

func parsePeriodQuery(c *gin.Context) (*models.Period, bool) {
	raw := c.Query("period")
	if raw == "" {
		return nil, true
	}
	period, err := models.ParsePeriod(raw)
	if err != nil {
		utils.ValidationErrorResponse(c, "", map[string]string{"period": err.Error()})
		return nil, false
	}
	return &period, true
}

func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return models.Actor{}, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}
