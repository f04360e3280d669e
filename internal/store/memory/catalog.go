package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	defer s.lock()()

	if err := s.categoryNameTaken(category); err != nil {
		return nil, err
	}
	s.st.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string, view store.View) (*domain.Category, error) {
	defer s.rlock()()

	category, ok := s.st.categories[id]
	if !ok || !view.Includes(category.Lifecycle) {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context, view store.View) ([]domain.Category, error) {
	defer s.rlock()()

	categories := make([]domain.Category, 0, len(s.st.categories))
	for _, category := range s.st.categories {
		if view.Includes(category.Lifecycle) {
			categories = append(categories, category)
		}
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	defer s.lock()()

	if _, ok := s.st.categories[category.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.categoryNameTaken(category); err != nil {
		return nil, err
	}
	s.st.categories[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) categoryNameTaken(category domain.Category) error {
	if category.Lifecycle != domain.LifecycleActive {
		return nil
	}
	for _, existing := range s.st.categories {
		if existing.ID != category.ID && existing.Lifecycle == domain.LifecycleActive && sameText(existing.Name, category.Name) {
			return fmt.Errorf("%w: a category with this name already exists", store.ErrConflict)
		}
	}
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	defer s.lock()()

	if err := s.productTaken(product); err != nil {
		return nil, err
	}
	s.st.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string, view store.View) (*domain.Product, error) {
	defer s.rlock()()

	product, ok := s.st.products[id]
	if !ok || !view.Includes(product.Lifecycle) {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string, view store.View) (*domain.Product, error) {
	defer s.rlock()()

	for _, product := range s.st.products {
		if product.Code == code && view.Includes(product.Lifecycle) {
			found := product
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return s.GetProduct(ctx, id, store.ViewAll)
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	defer s.rlock()()

	products := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		if !filter.View.Includes(p.Lifecycle) {
			continue
		}
		if filter.OnlyActive && !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Query != "" && !containsFold(p.Name, filter.Query) && !containsFold(p.Code, filter.Query) {
			continue
		}
		if filter.MinPrice != nil && p.UnitPrice.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.UnitPrice.GreaterThan(*filter.MaxPrice) {
			continue
		}
		if filter.OutOfStock && p.Stock != 0 {
			continue
		}
		if filter.LowStock && p.Stock > p.StockMin {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	defer s.lock()()

	if _, ok := s.st.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.productTaken(product); err != nil {
		return nil, err
	}
	s.st.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) SetProductStock(_ context.Context, id string, stock int) error {
	defer s.lock()()

	product, ok := s.st.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if stock < 0 {
		return store.ErrInsufficientStock
	}
	product.Stock = stock
	s.st.products[id] = product
	return nil
}

func (s *Store) productTaken(product domain.Product) error {
	for _, existing := range s.st.products {
		if existing.ID == product.ID {
			continue
		}
		if existing.Code == product.Code {
			return fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
		}
		if product.Lifecycle == domain.LifecycleActive && existing.Lifecycle == domain.LifecycleActive && sameText(existing.Name, product.Name) {
			return fmt.Errorf("%w: a product with this name already exists", store.ErrConflict)
		}
	}
	return nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	defer s.lock()()

	if err := s.clientTaken(client); err != nil {
		return nil, err
	}
	s.st.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, id string, view store.View) (*domain.Client, error) {
	defer s.rlock()()

	client, ok := s.st.clients[id]
	if !ok || !view.Includes(client.Lifecycle) {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) GetClientByCode(_ context.Context, code string, view store.View) (*domain.Client, error) {
	defer s.rlock()()

	for _, client := range s.st.clients {
		if client.Code == code && view.Includes(client.Lifecycle) {
			found := client
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListClients(_ context.Context, filter store.ClientFilter) ([]domain.Client, error) {
	defer s.rlock()()

	clients := make([]domain.Client, 0, len(s.st.clients))
	for _, c := range s.st.clients {
		if !filter.View.Includes(c.Lifecycle) {
			continue
		}
		if filter.Name != "" && !containsFold(c.LastName, filter.Name) && !containsFold(c.FirstName, filter.Name) {
			continue
		}
		if filter.Phone != "" && !strings.Contains(c.Phone, strings.TrimSpace(filter.Phone)) {
			continue
		}
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return clients, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	defer s.lock()()

	if _, ok := s.st.clients[client.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.clientTaken(client); err != nil {
		return nil, err
	}
	s.st.clients[client.ID] = client
	updated := client
	return &updated, nil
}

func (s *Store) clientTaken(client domain.Client) error {
	for _, existing := range s.st.clients {
		if existing.ID == client.ID {
			continue
		}
		if existing.Code == client.Code {
			return fmt.Errorf("%w: client code %s already exists", store.ErrConflict, client.Code)
		}
		if client.Lifecycle != domain.LifecycleActive || existing.Lifecycle != domain.LifecycleActive {
			continue
		}
		if existing.Phone == client.Phone {
			return fmt.Errorf("%w: a client with this phone already exists", store.ErrConflict)
		}
		if client.Email != "" && sameText(existing.Email, client.Email) {
			return fmt.Errorf("%w: a client with this email already exists", store.ErrConflict)
		}
	}
	return nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	defer s.lock()()

	if err := s.promotionCodeTaken(promo); err != nil {
		return nil, err
	}
	s.st.promotions[promo.ID] = promo
	created := promo
	return &created, nil
}

func (s *Store) GetPromotion(_ context.Context, id string, view store.View) (*domain.Promotion, error) {
	defer s.rlock()()

	promo, ok := s.st.promotions[id]
	if !ok || !view.Includes(promo.Lifecycle) {
		return nil, store.ErrNotFound
	}
	return &promo, nil
}

func (s *Store) GetPromotionByCode(_ context.Context, code string, view store.View) (*domain.Promotion, error) {
	defer s.rlock()()

	for _, promo := range s.st.promotions {
		if promo.Code == code && view.Includes(promo.Lifecycle) {
			found := promo
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPromotions(_ context.Context, filter store.PromotionFilter) ([]domain.Promotion, error) {
	defer s.rlock()()

	promos := make([]domain.Promotion, 0, len(s.st.promotions))
	for _, p := range s.st.promotions {
		if !filter.View.Includes(p.Lifecycle) {
			continue
		}
		if filter.ActiveAt != nil && !p.ActiveAt(*filter.ActiveAt) {
			continue
		}
		if filter.ProductID != "" && (p.ProductID == nil || *p.ProductID != filter.ProductID) {
			continue
		}
		if filter.CategoryID != "" && (p.CategoryID == nil || *p.CategoryID != filter.CategoryID) {
			continue
		}
		promos = append(promos, p)
	}
	slices.SortFunc(promos, func(a, b domain.Promotion) int { return b.StartsAt.Compare(a.StartsAt) })
	return promos, nil
}

func (s *Store) UpdatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	defer s.lock()()

	if _, ok := s.st.promotions[promo.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.promotionCodeTaken(promo); err != nil {
		return nil, err
	}
	s.st.promotions[promo.ID] = promo
	updated := promo
	return &updated, nil
}

func (s *Store) promotionCodeTaken(promo domain.Promotion) error {
	for _, existing := range s.st.promotions {
		if existing.ID != promo.ID && existing.Code == promo.Code {
			return fmt.Errorf("%w: promotion code %s already exists", store.ErrConflict, promo.Code)
		}
	}
	return nil
}
