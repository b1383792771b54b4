package domain

import "time"

// User — минимальный профиль покупателя, достаточный для проверки
// права оформлять заказы.
type User struct {
	ID              string
	Email           string
	IsDeleted       bool
	IsBanned        bool
	IsEmailVerified bool
	CreatedAt       time.Time
}

// CheckStatus проверяет, может ли пользователь выполнять операции с заказами.
// Порядок проверок фиксирован: удалён, заблокирован, не подтверждён.
func (u *User) CheckStatus() error {
	switch {
	case u.IsDeleted:
		return ErrUserDeleted
	case u.IsBanned:
		return ErrUserBanned
	case !u.IsEmailVerified:
		return ErrUserNotVerified
	default:
		return nil
	}
}
