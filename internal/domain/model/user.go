package model

type UserRole string

const (
	UserRoleCustomer UserRole = "Customer"
	UserRoleAdmin    UserRole = "Admin"
)

type User struct {
	ID       int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email    string   `gorm:"not null;uniqueIndex:uq_users_email;type:varchar(255)" json:"email"`
	FullName string   `gorm:"type:varchar(255)" json:"full_name"`
	Phone    string   `gorm:"type:varchar(32)" json:"phone"`
	Role     UserRole `gorm:"not null;type:varchar(16);default:'Customer'" json:"role"`
	IsGuest  bool     `gorm:"not null;default:false" json:"is_guest"`
	BaseModel
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
