package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryCycle    = errors.New("category cannot be moved into its own subtree")
	ErrNameRequired     = errors.New("name is required")
)

// CategoryService 维护文章分类的嵌套集合树。
type CategoryService struct {
	db *gorm.DB
}

// CategoryNode 是 Tree 返回的带子节点的分类。
type CategoryNode struct {
	db.ArticleCategory
	Children []*CategoryNode `json:"children"`
}

// CategoryInput 描述创建或更新分类时的字段。
type CategoryInput struct {
	Name     string
	Slug     string
	ParentID *uint
}

// NewCategoryService 创建 CategoryService 实例。
func NewCategoryService(gdb *gorm.DB) *CategoryService {
	return &CategoryService{db: gdb}
}

// List 按 lft 顺序返回扁平的分类列表。
func (s *CategoryService) List() ([]db.ArticleCategory, error) {
	return repository.CategoryTree(s.db)
}

// Tree 返回根节点及嵌套的子节点。
func (s *CategoryService) Tree() ([]*CategoryNode, error) {
	flat, err := repository.CategoryTree(s.db)
	if err != nil {
		return nil, err
	}

	roots := make([]*CategoryNode, 0)
	var stack []*CategoryNode
	for _, category := range flat {
		node := &CategoryNode{ArticleCategory: category, Children: []*CategoryNode{}}
		// 弹出所有不再包含当前节点的祖先
		for len(stack) > 0 && stack[len(stack)-1].Rgt < category.Lft {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}
	return roots, nil
}

// Get 按 ID 或 slug 查找分类。
func (s *CategoryService) Get(ref string) (*db.ArticleCategory, error) {
	var category db.ArticleCategory
	if err := s.db.Scopes(repository.ByReference("", ref)).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

// Create 把分类插入为 input.ParentID 的最后一个子节点，未指定父节点时作为最后一个根节点。
func (s *CategoryService) Create(input CategoryInput) (*db.ArticleCategory, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	slug, err := resolveSlug(input.Slug, name)
	if err != nil {
		return nil, err
	}

	category := db.ArticleCategory{Name: name, Slug: slug}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, &db.ArticleCategory{}, "slug", slug, 0, nil); err != nil {
			return err
		}

		if input.ParentID == nil || *input.ParentID == 0 {
			var maxRgt int
			if err := tx.Model(&db.ArticleCategory{}).Select("COALESCE(MAX(rgt), 0)").Scan(&maxRgt).Error; err != nil {
				return err
			}
			category.Lft = maxRgt + 1
			category.Rgt = maxRgt + 2
			category.Depth = 0
			return tx.Create(&category).Error
		}

		var parent db.ArticleCategory
		if err := tx.First(&parent, *input.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		// 为新节点腾出位置：父节点右边界及其右侧的边界整体右移 2
		if err := shiftBounds(tx, parent.Rgt, 2); err != nil {
			return err
		}
		parentID := parent.ID
		category.ParentID = &parentID
		category.Lft = parent.Rgt
		category.Rgt = parent.Rgt + 1
		category.Depth = parent.Depth + 1
		return tx.Create(&category).Error
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// Update 修改分类名称与 slug，不改变树中位置，移动请用 Move。
func (s *CategoryService) Update(id uint, input CategoryInput) (*db.ArticleCategory, error) {
	var category db.ArticleCategory
	if err := s.db.First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	slug, err := resolveSlug(input.Slug, name)
	if err != nil {
		return nil, err
	}
	if err := ensureUnique(s.db, &db.ArticleCategory{}, "slug", slug, category.ID, nil); err != nil {
		return nil, err
	}

	if err := s.db.Model(&category).Updates(map[string]any{"name": name, "slug": slug}).Error; err != nil {
		return nil, err
	}
	category.Name = name
	category.Slug = slug
	return &category, nil
}

// Move 修改分类的父节点，parent 为 nil 时变为根节点。
// 节点成为新父节点的最后一个子节点，子树随之移动。
func (s *CategoryService) Move(id uint, parentID *uint) (*db.ArticleCategory, error) {
	if parentID != nil && *parentID == 0 {
		parentID = nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var node db.ArticleCategory
		if err := tx.First(&node, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		if parentID != nil {
			var parent db.ArticleCategory
			if err := tx.First(&parent, *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCategoryNotFound
				}
				return err
			}
			if parent.Lft >= node.Lft && parent.Rgt <= node.Rgt {
				return ErrCategoryCycle
			}
		}

		var maxRgt int
		if err := tx.Model(&db.ArticleCategory{}).Select("COALESCE(MAX(rgt), 0)").Scan(&maxRgt).Error; err != nil {
			return err
		}
		// 临时把节点排到最后，重建后即成为新父节点的最后一个子节点
		if err := tx.Model(&db.ArticleCategory{}).Where("id = ?", node.ID).
			UpdateColumns(map[string]any{"parent_id": parentID, "lft": maxRgt + 1}).Error; err != nil {
			return err
		}
		return rebuildTree(tx)
	})
	if err != nil {
		return nil, err
	}

	var moved db.ArticleCategory
	if err := s.db.First(&moved, id).Error; err != nil {
		return nil, err
	}
	return &moved, nil
}

// Delete 删除分类及整棵子树，并解除相关文章的关联。
func (s *CategoryService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var node db.ArticleCategory
		if err := tx.First(&node, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		ids, err := repository.SubtreeIDs(tx, node)
		if err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM article_category_links WHERE article_category_id IN ?", ids).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&db.ArticleCategory{}).Error; err != nil {
			return err
		}

		width := node.Rgt - node.Lft + 1
		return shiftBounds(tx, node.Rgt+1, -width)
	})
}

// Rebuild 根据父子关系重新计算 lft/rgt/depth，兄弟节点保持原有顺序。
func (s *CategoryService) Rebuild() error {
	return s.db.Transaction(rebuildTree)
}

// shiftBounds 把所有 >= from 的边界平移 delta。
func shiftBounds(tx *gorm.DB, from, delta int) error {
	if err := tx.Model(&db.ArticleCategory{}).Where("rgt >= ?", from).
		UpdateColumn("rgt", gorm.Expr("rgt + ?", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&db.ArticleCategory{}).Where("lft >= ?", from).
		UpdateColumn("lft", gorm.Expr("lft + ?", delta)).Error
}

func rebuildTree(tx *gorm.DB) error {
	var nodes []db.ArticleCategory
	if err := tx.Order("lft asc").Order("id asc").Find(&nodes).Error; err != nil {
		return err
	}

	known := make(map[uint]bool, len(nodes))
	for _, node := range nodes {
		known[node.ID] = true
	}
	children := make(map[uint][]*db.ArticleCategory, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		parent := uint(0)
		if node.ParentID != nil && known[*node.ParentID] && *node.ParentID != node.ID {
			parent = *node.ParentID
		} else {
			node.ParentID = nil
		}
		children[parent] = append(children[parent], node)
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Lft < list[j].Lft })
	}

	counter := 0
	visited := make(map[uint]bool, len(nodes))
	var walk func(parent uint, depth int)
	walk = func(parent uint, depth int) {
		for _, node := range children[parent] {
			if visited[node.ID] {
				continue
			}
			visited[node.ID] = true
			counter++
			node.Lft = counter
			node.Depth = depth
			walk(node.ID, depth+1)
			counter++
			node.Rgt = counter
		}
	}
	walk(0, 0)

	// 父链成环的节点无法从根到达，挂到根下
	for i := range nodes {
		node := &nodes[i]
		if visited[node.ID] {
			continue
		}
		node.ParentID = nil
		children[0] = []*db.ArticleCategory{node}
		walk(0, 0)
	}

	for _, node := range nodes {
		if err := tx.Model(&db.ArticleCategory{}).Where("id = ?", node.ID).
			UpdateColumns(map[string]any{
				"parent_id": node.ParentID,
				"lft":       node.Lft,
				"rgt":       node.Rgt,
				"depth":     node.Depth,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}
