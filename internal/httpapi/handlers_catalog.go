package httpapi

import (
	"net/http"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

func (a *API) routeCatalog(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleListCategories))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCreateCategory))
	mux.HandleFunc("GET /api/v1/categories/{id}", a.requireAuth(a.handleGetCategory))
	mux.HandleFunc("PATCH /api/v1/categories/{id}", a.requireAuth(a.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/v1/categories/{id}", a.requireAuth(a.handleDeleteCategory))
	mux.HandleFunc("POST /api/v1/categories/{id}/restore", a.requireAuth(a.handleRestoreCategory))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("GET /api/v1/products/out-of-stock", a.requireAuth(a.handleOutOfStockProducts))
	mux.HandleFunc("GET /api/v1/products/low-stock", a.requireAuth(a.handleLowStockProducts))
	mux.HandleFunc("GET /api/v1/products/stats", a.requireAuth(a.handleProductStats))
	mux.HandleFunc("GET /api/v1/products/code/{code}", a.requireAuth(a.handleGetProductByCode))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}/stock", a.requireAuth(a.handleUpdateStock))
	mux.HandleFunc("DELETE /api/v1/products/{id}", a.requireAuth(a.handleDeleteProduct))
	mux.HandleFunc("POST /api/v1/products/{id}/restore", a.requireAuth(a.handleRestoreProduct))
}

func (a *API) routeClients(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/clients", a.requireAuth(a.handleListClients))
	mux.HandleFunc("POST /api/v1/clients", a.requireAuth(a.handleCreateClient))
	mux.HandleFunc("GET /api/v1/clients/{id}", a.requireAuth(a.handleGetClient))
	mux.HandleFunc("PATCH /api/v1/clients/{id}", a.requireAuth(a.handleUpdateClient))
	mux.HandleFunc("DELETE /api/v1/clients/{id}", a.requireAuth(a.handleDeleteClient))
	mux.HandleFunc("POST /api/v1/clients/{id}/restore", a.requireAuth(a.handleRestoreClient))
	mux.HandleFunc("GET /api/v1/clients/{id}/sales", a.requireAuth(a.handleClientHistory))
	mux.HandleFunc("GET /api/v1/clients/{id}/stats", a.requireAuth(a.handleClientStats))
}

func (a *API) routePromotions(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/promotions", a.requireAuth(a.handleListPromotions))
	mux.HandleFunc("GET /api/v1/promotions/active", a.requireAuth(a.handleActivePromotions))
	mux.HandleFunc("GET /api/v1/promotions/code/{code}", a.requireAuth(a.handleGetPromotionByCode))
	mux.HandleFunc("POST /api/v1/promotions/apply", a.requireAuth(a.handleApplyPromotion))
	mux.HandleFunc("POST /api/v1/promotions", a.requireAuth(a.handleCreatePromotion))
	mux.HandleFunc("GET /api/v1/promotions/{id}", a.requireAuth(a.handleGetPromotion))
	mux.HandleFunc("PATCH /api/v1/promotions/{id}", a.requireAuth(a.handleUpdatePromotion))
	mux.HandleFunc("DELETE /api/v1/promotions/{id}", a.requireAuth(a.handleDeletePromotion))
	mux.HandleFunc("POST /api/v1/promotions/{id}/restore", a.requireAuth(a.handleRestorePromotion))
}

// Categories

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	view, err := queryView(r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	categories, err := a.service.ListCategories(r.Context(), view)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, categories))
}

func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", category)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.CategoryCreateRequest](w, r)
	if !ok {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "category created", category)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.CategoryUpdateRequest](w, r)
	if !ok {
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "category updated", category)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.DeleteCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "category deleted", category)
}

func (a *API) handleRestoreCategory(w http.ResponseWriter, r *http.Request) {
	category, err := a.service.RestoreCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "category restored", category)
}

// Products

func productFilter(r *http.Request) (store.ProductFilter, error) {
	q := r.URL.Query()
	view, err := queryView(q)
	if err != nil {
		return store.ProductFilter{}, err
	}
	minPrice, err := queryDecimal(q, "min_price")
	if err != nil {
		return store.ProductFilter{}, err
	}
	maxPrice, err := queryDecimal(q, "max_price")
	if err != nil {
		return store.ProductFilter{}, err
	}
	onlyActive, err := queryBool(q, "active")
	if err != nil {
		return store.ProductFilter{}, err
	}

	return store.ProductFilter{
		View:       view,
		CategoryID: strings.TrimSpace(q.Get("category_id")),
		Query:      strings.TrimSpace(q.Get("q")),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		OnlyActive: onlyActive,
	}, nil
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request, narrow func(*store.ProductFilter)) {
	filter, err := productFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if narrow != nil {
		narrow(&filter)
	}
	products, err := a.service.ListProducts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, products))
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	a.listProducts(w, r, nil)
}

func (a *API) handleOutOfStockProducts(w http.ResponseWriter, r *http.Request) {
	a.listProducts(w, r, func(f *store.ProductFilter) { f.OutOfStock = true })
}

func (a *API) handleLowStockProducts(w http.ResponseWriter, r *http.Request) {
	a.listProducts(w, r, func(f *store.ProductFilter) { f.LowStock = true })
}

func (a *API) handleProductStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.ProductStockStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", product)
}

func (a *API) handleGetProductByCode(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProductByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", product)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.ProductCreateRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "product created", product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.ProductUpdateRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "product updated", product)
}

func (a *API) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.StockUpdateRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.UpdateStock(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "stock updated", product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.DeleteProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "product deleted", product)
}

func (a *API) handleRestoreProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.RestoreProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "product restored", product)
}

// Clients

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := queryView(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	clients, err := a.service.ListClients(r.Context(), store.ClientFilter{
		View:  view,
		Name:  strings.TrimSpace(q.Get("name")),
		Phone: strings.TrimSpace(q.Get("phone")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, clients))
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", client)
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.ClientCreateRequest](w, r)
	if !ok {
		return
	}
	client, err := a.service.CreateClient(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "client created", client)
}

func (a *API) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.ClientUpdateRequest](w, r)
	if !ok {
		return
	}
	client, err := a.service.UpdateClient(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "client updated", client)
}

func (a *API) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.DeleteClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "client deleted", client)
}

func (a *API) handleRestoreClient(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.RestoreClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "client restored", client)
}

func (a *API) handleClientHistory(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ClientHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, sales))
}

func (a *API) handleClientStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.ClientStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

// Promotions

func (a *API) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := queryView(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	activeAt, err := queryTime(q, "active_at", false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	promotions, err := a.service.ListPromotions(r.Context(), store.PromotionFilter{
		View:       view,
		ActiveAt:   activeAt,
		ProductID:  strings.TrimSpace(q.Get("product_id")),
		CategoryID: strings.TrimSpace(q.Get("category_id")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, promotions))
}

func (a *API) handleActivePromotions(w http.ResponseWriter, r *http.Request) {
	promotions, err := a.service.ListActivePromotions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", promotions)
}

func (a *API) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	promo, err := a.service.GetPromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", promo)
}

func (a *API) handleGetPromotionByCode(w http.ResponseWriter, r *http.Request) {
	promo, err := a.service.GetPromotionByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", promo)
}

func (a *API) handleApplyPromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PromotionApplyRequest](w, r)
	if !ok {
		return
	}
	result, err := a.service.ApplyPromotion(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "promotion applied", result)
}

func (a *API) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PromotionCreateRequest](w, r)
	if !ok {
		return
	}
	promo, err := a.service.CreatePromotion(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "promotion created", promo)
}

func (a *API) handleUpdatePromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PromotionUpdateRequest](w, r)
	if !ok {
		return
	}
	promo, err := a.service.UpdatePromotion(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "promotion updated", promo)
}

func (a *API) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	promo, err := a.service.DeletePromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "promotion deleted", promo)
}

func (a *API) handleRestorePromotion(w http.ResponseWriter, r *http.Request) {
	promo, err := a.service.RestorePromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "promotion restored", promo)
}
