package postgres

import (
	"context"
	"database/sql"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

const categoryColumns = `id, name, description, lifecycle, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Lifecycle, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, category.ID, category.Name, category.Description, category.Lifecycle, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a category with this name already exists")
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string, view store.View) (*domain.Category, error) {
	var w where
	w.add("id = $%d", id)
	w.view(view)
	return scanCategory(s.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories`+w.clause(), w.args...))
}

func (s *Store) ListCategories(ctx context.Context, view store.View) ([]domain.Category, error) {
	var w where
	w.view(view)
	rows, err := s.q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories`+w.clause()+` ORDER BY name`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCategory)
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE categories SET name = $2, description = $3, lifecycle = $4, updated_at = $5
		WHERE id = $1
	`, category.ID, category.Name, category.Description, category.Lifecycle, category.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a category with this name already exists")
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := category
	return &updated, nil
}

const productColumns = `id, code, name, description, unit_price, photo, stock, stock_min, category_id, active, lifecycle, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.UnitPrice, &p.Photo, &p.Stock, &p.StockMin, &p.CategoryID, &p.Active, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.Code, product.Name, product.Description, product.UnitPrice, product.Photo, product.Stock, product.StockMin,
		product.CategoryID, product.Active, product.Lifecycle, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a product with this name or code already exists")
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string, view store.View) (*domain.Product, error) {
	var w where
	w.add("id = $%d", id)
	w.view(view)
	return scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products`+w.clause(), w.args...))
}

func (s *Store) GetProductByCode(ctx context.Context, code string, view store.View) (*domain.Product, error) {
	var w where
	w.add("code = $%d", code)
	w.view(view)
	return scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products`+w.clause(), w.args...))
}

func (s *Store) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	var w where
	w.view(filter.View)
	if filter.OnlyActive {
		w.raw("active = true")
	}
	if filter.CategoryID != "" {
		w.add("category_id = $%d", filter.CategoryID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		w.add("(name ILIKE $%[1]d OR code ILIKE $%[1]d)", "%"+q+"%")
	}
	if filter.MinPrice != nil {
		w.add("unit_price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		w.add("unit_price <= $%d", *filter.MaxPrice)
	}
	if filter.OutOfStock {
		w.raw("stock = 0")
	}
	if filter.LowStock {
		w.raw("stock <= stock_min")
	}

	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+w.clause()+` ORDER BY name`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProduct)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, description = $4, unit_price = $5, photo = $6, stock = $7, stock_min = $8,
			category_id = $9, active = $10, lifecycle = $11, updated_at = $12
		WHERE id = $1
	`, product.ID, product.Code, product.Name, product.Description, product.UnitPrice, product.Photo, product.Stock, product.StockMin,
		product.CategoryID, product.Active, product.Lifecycle, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a product with this name or code already exists")
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) SetProductStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		return store.ErrInsufficientStock
	}
	res, err := s.q.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const clientColumns = `id, code, last_name, first_name, phone, email, address, lifecycle, created_at, updated_at`

func scanClient(row rowScanner) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.Code, &c.LastName, &c.FirstName, &c.Phone, &c.Email, &c.Address, &c.Lifecycle, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, client.ID, client.Code, client.LastName, client.FirstName, client.Phone, client.Email, client.Address,
		client.Lifecycle, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a client with this code, phone or email already exists")
	}
	created := client
	return &created, nil
}

func (s *Store) GetClient(ctx context.Context, id string, view store.View) (*domain.Client, error) {
	var w where
	w.add("id = $%d", id)
	w.view(view)
	return scanClient(s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients`+w.clause(), w.args...))
}

func (s *Store) GetClientByCode(ctx context.Context, code string, view store.View) (*domain.Client, error) {
	var w where
	w.add("code = $%d", code)
	w.view(view)
	return scanClient(s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients`+w.clause(), w.args...))
}

func (s *Store) ListClients(ctx context.Context, filter store.ClientFilter) ([]domain.Client, error) {
	var w where
	w.view(filter.View)
	if name := strings.TrimSpace(filter.Name); name != "" {
		w.add("(last_name ILIKE $%[1]d OR first_name ILIKE $%[1]d)", "%"+name+"%")
	}
	if phone := strings.TrimSpace(filter.Phone); phone != "" {
		w.add("phone LIKE $%d", "%"+phone+"%")
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients`+w.clause()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanClient)
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE clients
		SET last_name = $2, first_name = $3, phone = $4, email = $5, address = $6, lifecycle = $7, updated_at = $8
		WHERE id = $1
	`, client.ID, client.LastName, client.FirstName, client.Phone, client.Email, client.Address, client.Lifecycle, client.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a client with this phone or email already exists")
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := client
	return &updated, nil
}

const promotionColumns = `id, name, code, description, discount_type, value, starts_at, ends_at, product_id, category_id, lifecycle, created_at, updated_at`

func scanPromotion(row rowScanner) (*domain.Promotion, error) {
	var p domain.Promotion
	var productID, categoryID sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.Type, &p.Value, &p.StartsAt, &p.EndsAt,
		&productID, &categoryID, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	p.ProductID = stringPtr(productID)
	p.CategoryID = stringPtr(categoryID)
	return &p, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, promo.ID, promo.Name, promo.Code, promo.Description, promo.Type, promo.Value, promo.StartsAt, promo.EndsAt,
		nullString(promo.ProductID), nullString(promo.CategoryID), promo.Lifecycle, promo.CreatedAt, promo.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "promotion code "+promo.Code+" already exists")
	}
	created := promo
	return &created, nil
}

func (s *Store) GetPromotion(ctx context.Context, id string, view store.View) (*domain.Promotion, error) {
	var w where
	w.add("id = $%d", id)
	w.view(view)
	return scanPromotion(s.q.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions`+w.clause(), w.args...))
}

func (s *Store) GetPromotionByCode(ctx context.Context, code string, view store.View) (*domain.Promotion, error) {
	var w where
	w.add("code = $%d", code)
	w.view(view)
	return scanPromotion(s.q.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions`+w.clause(), w.args...))
}

func (s *Store) ListPromotions(ctx context.Context, filter store.PromotionFilter) ([]domain.Promotion, error) {
	var w where
	w.view(filter.View)
	if filter.ActiveAt != nil {
		w.add("starts_at <= $%[1]d AND ends_at >= $%[1]d", *filter.ActiveAt)
	}
	if filter.ProductID != "" {
		w.add("product_id = $%d", filter.ProductID)
	}
	if filter.CategoryID != "" {
		w.add("category_id = $%d", filter.CategoryID)
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+promotionColumns+` FROM promotions`+w.clause()+` ORDER BY starts_at DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPromotion)
}

func (s *Store) UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE promotions
		SET name = $2, code = $3, description = $4, discount_type = $5, value = $6, starts_at = $7, ends_at = $8,
			product_id = $9, category_id = $10, lifecycle = $11, updated_at = $12
		WHERE id = $1
	`, promo.ID, promo.Name, promo.Code, promo.Description, promo.Type, promo.Value, promo.StartsAt, promo.EndsAt,
		nullString(promo.ProductID), nullString(promo.CategoryID), promo.Lifecycle, promo.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "promotion code "+promo.Code+" already exists")
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := promo
	return &updated, nil
}
