package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

type productRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	SKU         string `json:"sku"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	PublishedAt string `json:"publishedAt"`
	ExpiredAt   string `json:"expiredAt"`
	ImageFileID *uint  `json:"imageFileId"`
}

func (r productRequest) toInput() (service.ProductInput, map[string]string) {
	input := service.ProductInput{
		Name:        r.Name,
		Slug:        r.Slug,
		SKU:         r.SKU,
		Description: r.Description,
		PriceCents:  r.PriceCents,
		Currency:    r.Currency,
		Status:      r.Status,
		ImageFileID: r.ImageFileID,
	}
	var errs map[string]string
	input.PublishedAt, input.ExpiredAt, errs = parseWindow(r.PublishedAt, r.ExpiredAt)
	return input, errs
}

// ListProducts 返回商品列表，可按状态过滤。
func (a *API) ListProducts(c *gin.Context) {
	products, err := a.products.List(strings.TrimSpace(c.Query("status")))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", products)
}

// GetProduct 按 ID 或 slug 返回商品。
func (a *API) GetProduct(c *gin.Context) {
	product, err := a.products.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", product)
}

// CreateProduct 创建商品。
func (a *API) CreateProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req, "invalid product payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	product, err := a.products.Create(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "product created", product)
}

// UpdateProduct 更新商品。
func (a *API) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req productRequest
	if !bindJSON(c, &req, "invalid product payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	product, err := a.products.Update(id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "product updated", product)
}

// DeleteProduct 删除商品。
func (a *API) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.products.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "product deleted", nil)
}
