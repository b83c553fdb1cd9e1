package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errUnknownUser = errors.New("user not found")

// currentUser loads the user named by the request's token claims.
func currentUser(ctx *appcontext.Context, c *gin.Context) (*entity.User, error) {
	userID, err := utils.GetUserIDFromClaims(c)
	if err != nil {
		return nil, err
	}

	var user entity.User
	err = ctx.DB.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// requireUser writes the error reply and returns nil when the caller cannot
// be resolved.
func requireUser(ctx *appcontext.Context, c *gin.Context) *entity.User {
	user, err := currentUser(ctx, c)
	if err != nil {
		ctx.Logger.Error("Failed to resolve user from claims", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil
	}
	return user
}

func GetUserInfo(ctx *appcontext.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requireUser(ctx, c)
		if user == nil {
			return
		}

		c.JSON(http.StatusOK, user)
	}
}
