package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Dalmocabral/crewcenter/config"
	"github.com/Dalmocabral/crewcenter/models"
	"github.com/Dalmocabral/crewcenter/utils"
)

// UserController serves the public crew roster.
type UserController struct {
	db    *gorm.DB
	cache *utils.Cache
}

func NewUserController(db *gorm.DB, cache *utils.Cache) *UserController {
	return &UserController{db: db, cache: cache}
}

// ListUsers returns crew members, newest first.
func (u *UserController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	db := u.db.WithContext(ctx.Request.Context())

	var total int64
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50000, "failed to count users")
		return
	}
	var users []models.User
	if err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to retrieve users")
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, user := range users {
		items = append(items, publicUser(user))
	}
	utils.Success(ctx, paginated(items, page, pageSize, total))
}

// GetUser returns public info for one crew member.
func (u *UserController) GetUser(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid user id")
		return
	}
	key := fmt.Sprintf("cache:user:public:%d", id)
	var cached map[string]interface{}
	if u.cache.GetJSON(ctx.Request.Context(), key, &cached) {
		utils.Success(ctx, cached)
		return
	}

	var user models.User
	if err := u.db.WithContext(ctx.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40450, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to get user")
		return
	}
	payload := publicUser(user)
	u.cache.SetJSON(ctx.Request.Context(), key, payload, time.Hour)
	utils.Success(ctx, payload)
}

func publicUser(user models.User) gin.H {
	return gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"username_ifc": user.UsernameIFC,
		"country":      user.Country,
		"is_admin":     config.Get().IsAdmin(user.Username),
		"created_at":   user.CreatedAt,
	}
}
