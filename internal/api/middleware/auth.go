package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/pkg/response"
)

const callerKey = "caller"

var errNoToken = errors.New("missing bearer token")

// Claims 身份系统签发的 token；sub 为用户 ID
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth 解析 Authorization: Bearer <jwt>，把 *model.Caller 放进 gin.Context
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth { return &Auth{secret: []byte(secret)} }

// Optional 有合法 token 时识别调用者，否则按匿名继续
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller, err := a.parse(c); err == nil {
			c.Set(callerKey, caller)
		}
		c.Next()
	}
}

// Required 没有合法 token 时返回 401
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := a.parse(c)
		if err != nil {
			response.Unauthorized(c, "Unauthorized")
			c.Abort()
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// Admin 必须在 Required 之后使用
func (a *Auth) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerFrom(c).IsAdmin() {
			response.Forbidden(c, "admin only")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *Auth) parse(c *gin.Context) (*model.Caller, error) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errNoToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = model.RoleAuthor
	}
	return &model.Caller{ID: claims.Subject, Role: role}, nil
}

// CallerFrom 取出当前调用者，匿名时为 nil
func CallerFrom(c *gin.Context) *model.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(*model.Caller); ok {
			return caller
		}
	}
	return nil
}
