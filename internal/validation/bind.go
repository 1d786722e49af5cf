package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
)

// BindAndValidate decodes the JSON body into out and validates it. On failure it writes the
// 400 response itself and returns the validation error so the handler can stop.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "msg": err.Error()})
		return apperr.Validation("Invalid request body", nil)
	}

	if err := v.Struct(out); err != nil {
		fields := FieldMessages(err)
		verr := apperr.Validation(Summary(fields), fields)
		c.JSON(verr.Status(), gin.H{"error": verr.Message, "fields": fields})
		return verr
	}
	return nil
}
