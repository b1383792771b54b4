package memory

import (
	"context"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// productRepo — реализация ProductRepository поверх рабочей копии состояния.
type productRepo struct {
	st *state
}

func (r *productRepo) Create(ctx context.Context, product domain.Product) error {
	r.st.products[product.ID] = product
	return nil
}

func (r *productRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepo)(nil)

// userRepo — реализация UserRepository поверх рабочей копии состояния.
type userRepo struct {
	st *state
}

func (r *userRepo) Create(ctx context.Context, user domain.User) error {
	r.st.users[user.ID] = user
	return nil
}

func (r *userRepo) Get(ctx context.Context, id string) (domain.User, error) {
	user, ok := r.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

var _ domain.UserRepository = (*userRepo)(nil)
