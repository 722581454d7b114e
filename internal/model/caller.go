package model

// 角色
const (
	RoleAdmin  = "admin"
	RoleAuthor = "author"
)

// Caller 已由身份系统验证过的调用者；nil 表示匿名
type Caller struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (c *Caller) IsAdmin() bool { return c != nil && c.Role == RoleAdmin }
