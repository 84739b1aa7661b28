package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

type categoryRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID *uint  `json:"parentId"`
}

type moveCategoryRequest struct {
	ParentID *uint `json:"parentId"`
}

// GetCategoryTree 返回嵌套的分类树。
func (a *API) GetCategoryTree(c *gin.Context) {
	tree, err := a.categories.Tree()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", tree)
}

// GetCategory 按 ID 或 slug 返回分类。
func (a *API) GetCategory(c *gin.Context) {
	category, err := a.categories.Get(c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", category)
}

// CreateCategory 在父节点下追加新分类，parentId 为空时作为根节点。
func (a *API) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := a.categories.Create(service.CategoryInput{Name: req.Name, Slug: req.Slug, ParentID: req.ParentID})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "category created", category)
}

// UpdateCategory 更新分类名称与 slug，位置不变，移动请用 MoveCategory。
func (a *API) UpdateCategory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req categoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := a.categories.Update(id, service.CategoryInput{Name: req.Name, Slug: req.Slug, ParentID: req.ParentID})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "category updated", category)
}

// MoveCategory 把分类及其子树移动到新的父节点下。
func (a *API) MoveCategory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req moveCategoryRequest
	if !bindJSON(c, &req, "invalid move payload") {
		return
	}
	category, err := a.categories.Move(id, req.ParentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "category moved", category)
}

// DeleteCategory 删除分类及其整棵子树。
func (a *API) DeleteCategory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.categories.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "category deleted", nil)
}

// RebuildCategories 根据父子关系重新计算嵌套集合的边界。
func (a *API) RebuildCategories(c *gin.Context) {
	if err := a.categories.Rebuild(); err != nil {
		respondServiceError(c, err)
		return
	}
	list, err := a.categories.List()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "category tree rebuilt ("+strconv.Itoa(len(list))+" nodes)", list)
}
