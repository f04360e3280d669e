package httpapi

import (
	"net/http"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

func (a *API) routeSales(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("GET /api/v1/sales/stats", a.requireAuth(a.handleSaleStats))
	mux.HandleFunc("GET /api/v1/sales/export", a.requireAuth(a.handleExportSales))
	mux.HandleFunc("GET /api/v1/sales/lookup", a.requireAuth(a.handleGetSaleByNumber))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale))
	mux.HandleFunc("PATCH /api/v1/sales/{id}", a.requireAuth(a.handleUpdateSale))
	mux.HandleFunc("PATCH /api/v1/sales/{id}/status", a.requireAuth(a.handleChangeSaleStatus))
	mux.HandleFunc("POST /api/v1/sales/{id}/refund", a.requireAuth(a.handleRefundSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancelSale))

	mux.HandleFunc("GET /api/v1/sales/{id}/lines", a.requireAuth(a.handleListLinesOfSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/lines", a.requireAuth(a.handleAddLineToSale))
	mux.HandleFunc("PATCH /api/v1/sales/{id}/lines/{lineID}", a.requireAuth(a.handleUpdateLineOfSale))
	mux.HandleFunc("DELETE /api/v1/sales/{id}/lines/{lineID}", a.requireAuth(a.handleRemoveLineOfSale))

	mux.HandleFunc("GET /api/v1/sales/{id}/payments", a.requireAuth(a.handleListPaymentsOfSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/payments", a.requireAuth(a.handleAddPaymentToSale))
	mux.HandleFunc("GET /api/v1/sales/{id}/invoice", a.requireAuth(a.handleGetInvoiceOfSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/invoice", a.requireAuth(a.handleGenerateInvoiceForSale))
}

func (a *API) routeSaleLines(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sale-lines", a.requireAuth(a.handleListAllLines))
	mux.HandleFunc("POST /api/v1/sale-lines", a.requireAuth(a.handleCreateLine))
	mux.HandleFunc("GET /api/v1/sale-lines/{id}", a.requireAuth(a.handleGetLine))
	mux.HandleFunc("GET /api/v1/sale-lines/{id}/subtotal", a.requireAuth(a.handleLineSubtotal))
	mux.HandleFunc("PATCH /api/v1/sale-lines/{id}", a.requireAuth(a.handleUpdateLine))
	mux.HandleFunc("POST /api/v1/sale-lines/{id}/discount", a.requireAuth(a.handleLineDiscount))
	mux.HandleFunc("DELETE /api/v1/sale-lines/{id}", a.requireAuth(a.handleDeleteLine))
}

func (a *API) routePayments(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/payments", a.requireAuth(a.handleListPayments))
	mux.HandleFunc("GET /api/v1/payments/stats", a.requireAuth(a.handlePaymentStats))
	mux.HandleFunc("POST /api/v1/payments", a.requireAuth(a.handleCreatePayment))
	mux.HandleFunc("GET /api/v1/payments/{id}", a.requireAuth(a.handleGetPayment))
	mux.HandleFunc("PATCH /api/v1/payments/{id}", a.requireAuth(a.handleUpdatePayment))
	mux.HandleFunc("PATCH /api/v1/payments/{id}/status", a.requireAuth(a.handleChangePaymentStatus))
	mux.HandleFunc("POST /api/v1/payments/{id}/validate", a.requireAuth(a.handleValidatePayment))
	mux.HandleFunc("POST /api/v1/payments/{id}/refuse", a.requireAuth(a.handleRefusePayment))
	mux.HandleFunc("DELETE /api/v1/payments/{id}", a.requireAuth(a.handleDeletePayment))
}

func (a *API) routeInvoices(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/invoices", a.requireAuth(a.handleListInvoices))
	mux.HandleFunc("GET /api/v1/invoices/stats", a.requireAuth(a.handleInvoiceStats))
	mux.HandleFunc("GET /api/v1/invoices/number/{number}", a.requireAuth(a.handleGetInvoiceByNumber))
	mux.HandleFunc("POST /api/v1/invoices", a.requireAuth(a.handleCreateInvoice))
	mux.HandleFunc("GET /api/v1/invoices/{id}", a.requireAuth(a.handleGetInvoice))
	mux.HandleFunc("PATCH /api/v1/invoices/{id}", a.requireAuth(a.handleUpdateInvoice))
	mux.HandleFunc("POST /api/v1/invoices/{id}/cancel", a.requireAuth(a.handleCancelInvoice))
	mux.HandleFunc("POST /api/v1/invoices/{id}/regenerate", a.requireAuth(a.handleRegenerateInvoice))
	mux.HandleFunc("DELETE /api/v1/invoices/{id}", a.requireAuth(a.handleDeleteInvoice))
}

// Sales

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := queryPeriod(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sales, err := a.service.ListSales(r.Context(), store.SaleFilter{
		Status:    domain.SaleStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		CashierID: strings.TrimSpace(q.Get("cashier_id")),
		ClientID:  strings.TrimSpace(q.Get("client_id")),
		From:      from,
		To:        to,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, sales))
}

func (a *API) handleSaleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.SaleStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (a *API) handleExportSales(w http.ResponseWriter, r *http.Request) {
	exports, err := a.service.ExportSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", exports)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", sale)
}

// handleGetSaleByNumber reads the number from the query string; a path
// segment would overlap the /sales/{id}/... routes.
func (a *API) handleGetSaleByNumber(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSaleByNumber(r.Context(), strings.TrimSpace(r.URL.Query().Get("number")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", sale)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleCreateRequest](w, r)
	if !ok {
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "sale created", sale)
}

func (a *API) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleUpdateRequest](w, r)
	if !ok {
		return
	}
	sale, err := a.service.UpdateSale(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "sale updated", sale)
}

func (a *API) handleChangeSaleStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleStatusRequest](w, r)
	if !ok {
		return
	}
	sale, err := a.service.ChangeSaleStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "sale status changed", sale)
}

func (a *API) handleRefundSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleRefundRequest](w, r)
	if !ok {
		return
	}
	sale, err := a.service.RefundSale(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "sale refunded", sale)
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.CancelSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "sale cancelled", sale)
}

func (a *API) handleListLinesOfSale(w http.ResponseWriter, r *http.Request) {
	lines, err := a.service.ListSaleLines(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", lines)
}

func (a *API) handleAddLineToSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleLineCreateRequest](w, r)
	if !ok {
		return
	}
	line, err := a.service.AddSaleLine(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "line added", line)
}

func (a *API) handleUpdateLineOfSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleLineUpdateRequest](w, r)
	if !ok {
		return
	}
	line, err := a.service.UpdateSaleLineOf(r.Context(), r.PathValue("id"), r.PathValue("lineID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "line updated", line)
}

func (a *API) handleRemoveLineOfSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveSaleLineOf(r.Context(), r.PathValue("id"), r.PathValue("lineID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "line removed", nil)
}

func (a *API) handleListPaymentsOfSale(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPayments(r.Context(), store.PaymentFilter{SaleID: r.PathValue("id")})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", payments)
}

func (a *API) handleAddPaymentToSale(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PaymentCreateRequest](w, r)
	if !ok {
		return
	}
	payment, err := a.service.AddSalePayment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "payment recorded", payment)
}

func (a *API) handleGetInvoiceOfSale(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoiceBySale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", invoice)
}

func (a *API) handleGenerateInvoiceForSale(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GenerateSaleInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "invoice issued", invoice)
}

// Sale lines

func (a *API) handleListAllLines(w http.ResponseWriter, r *http.Request) {
	lines, err := a.service.ListAllSaleLines(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, lines))
}

func (a *API) handleCreateLine(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleLineCreateRequest](w, r)
	if !ok {
		return
	}
	line, err := a.service.AddSaleLine(r.Context(), req.SaleID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "line added", line)
}

func (a *API) handleGetLine(w http.ResponseWriter, r *http.Request) {
	line, err := a.service.GetSaleLine(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", line)
}

func (a *API) handleLineSubtotal(w http.ResponseWriter, r *http.Request) {
	subtotal, err := a.service.SaleLineSubtotal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"subtotal": subtotal})
}

func (a *API) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.SaleLineUpdateRequest](w, r)
	if !ok {
		return
	}
	line, err := a.service.UpdateSaleLine(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "line updated", line)
}

func (a *API) handleLineDiscount(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.DiscountRequest](w, r)
	if !ok {
		return
	}
	line, err := a.service.ApplyLineDiscount(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "discount applied", line)
}

func (a *API) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSaleLine(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "line removed", nil)
}

// Payments

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := queryPeriod(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	payments, err := a.service.ListPayments(r.Context(), store.PaymentFilter{
		SaleID: strings.TrimSpace(q.Get("sale_id")),
		Mode:   domain.PaymentMode(strings.ToUpper(strings.TrimSpace(q.Get("mode")))),
		Status: domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		From:   from,
		To:     to,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, payments))
}

func (a *API) handlePaymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.PaymentStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PaymentCreateRequest](w, r)
	if !ok {
		return
	}
	payment, err := a.service.CreatePayment(r.Context(), req.SaleID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "payment recorded", payment)
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.GetPayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", payment)
}

func (a *API) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PaymentUpdateRequest](w, r)
	if !ok {
		return
	}
	payment, err := a.service.UpdatePayment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment updated", payment)
}

func (a *API) handleChangePaymentStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PaymentStatusRequest](w, r)
	if !ok {
		return
	}
	payment, err := a.service.ChangePaymentStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment status changed", payment)
}

func (a *API) handleValidatePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.ValidatePayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment validated", payment)
}

func (a *API) handleRefusePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.RefusePayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment refused", payment)
}

func (a *API) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeletePayment(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "payment deleted", nil)
}

// Invoices

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := queryPeriod(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	invoices, err := a.service.ListInvoices(r.Context(), store.InvoiceFilter{
		Status: domain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		From:   from,
		To:     to,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, invoices))
}

func (a *API) handleInvoiceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.InvoiceStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", invoice)
}

func (a *API) handleGetInvoiceByNumber(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoiceByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", invoice)
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.InvoiceCreateRequest](w, r)
	if !ok {
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "invoice issued", invoice)
}

func (a *API) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.InvoiceUpdateRequest](w, r)
	if !ok {
		return
	}
	invoice, err := a.service.UpdateInvoice(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "invoice updated", invoice)
}

func (a *API) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.CancelInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "invoice cancelled", invoice)
}

func (a *API) handleRegenerateInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.RegenerateInvoiceArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "invoice document regenerated", invoice)
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInvoice(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "invoice deleted", nil)
}
