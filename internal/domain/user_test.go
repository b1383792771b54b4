package domain

import (
	"errors"
	"testing"
)

func TestUserCheckStatus(t *testing.T) {
	tests := []struct {
		name string
		user User
		want error
	}{
		{
			name: "active verified user",
			user: User{ID: "u1", IsEmailVerified: true},
		},
		{
			name: "deleted user",
			user: User{ID: "u1", IsDeleted: true, IsEmailVerified: true},
			want: ErrUserDeleted,
		},
		{
			name: "banned user",
			user: User{ID: "u1", IsBanned: true, IsEmailVerified: true},
			want: ErrUserBanned,
		},
		{
			name: "unverified user",
			user: User{ID: "u1"},
			want: ErrUserNotVerified,
		},
		{
			// Удаление имеет приоритет над остальными признаками.
			name: "deleted and banned",
			user: User{ID: "u1", IsDeleted: true, IsBanned: true},
			want: ErrUserDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.user.CheckStatus(); !errors.Is(err, tt.want) {
				t.Fatalf("CheckStatus() = %v, want %v", err, tt.want)
			}
		})
	}
}
