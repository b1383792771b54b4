package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

type productRepository struct {
	q queryer
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{q: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (
			id, seller_id, name, price_minor, discount_minor, currency,
			stock, reserved, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		product.ID, product.SellerID, product.Name, product.PriceMinor, product.DiscountMinor, product.Currency,
		product.Stock, product.Reserved, product.IsActive, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, seller_id, name, price_minor, discount_minor, currency,
		       stock, reserved, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.SellerID, &product.Name, &product.PriceMinor, &product.DiscountMinor, &product.Currency,
		&product.Stock, &product.Reserved, &product.IsActive, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)

type userRepository struct {
	q queryer
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{q: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, email, is_deleted, is_banned, is_email_verified, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		user.ID, user.Email, user.IsDeleted, user.IsBanned, user.IsEmailVerified, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	err := r.q.QueryRowContext(ctx, `
		SELECT id, email, is_deleted, is_banned, is_email_verified, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Email, &user.IsDeleted, &user.IsBanned, &user.IsEmailVerified, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
