package repo

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// ProductRepository implements domain.ProductProvider.
type ProductRepository struct {
	sql infra.SQLExecutor
}

func NewProductRepository(sql infra.SQLExecutor) *ProductRepository {
	return &ProductRepository{sql: sql}
}

// FetchProducts returns the products that exist, in the order requested.
func (r *ProductRepository) FetchProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectProducts, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Tags); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// BrandRepository implements domain.BrandProvider.
type BrandRepository struct {
	sql infra.SQLExecutor
}

func NewBrandRepository(sql infra.SQLExecutor) *BrandRepository {
	return &BrandRepository{sql: sql}
}

func (r *BrandRepository) FetchBrand(ctx context.Context, userID string) (*domain.BrandVoice, error) {
	var brand domain.BrandVoice
	err := r.sql.QueryRow(ctx, sqlinline.QSelectBrandProfile, userID).Scan(&brand.Name, &brand.Tone, &brand.ForbiddenPhrases)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select brand profile: %w", err)
	}
	return &brand, nil
}

// TemplateRepository implements domain.TemplateProvider.
type TemplateRepository struct {
	sql infra.SQLExecutor
}

func NewTemplateRepository(sql infra.SQLExecutor) *TemplateRepository {
	return &TemplateRepository{sql: sql}
}

func (r *TemplateRepository) FetchTemplate(ctx context.Context, templateID string) (*domain.TemplateRecipe, error) {
	var tpl domain.TemplateRecipe
	err := r.sql.QueryRow(ctx, sqlinline.QSelectTemplate, templateID).
		Scan(&tpl.ID, &tpl.Name, &tpl.StyleDirectives, &tpl.ReferenceImageURLs, &tpl.AspectRatio)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select template: %w", err)
	}
	return &tpl, nil
}

var (
	_ domain.ProductProvider  = (*ProductRepository)(nil)
	_ domain.BrandProvider    = (*BrandRepository)(nil)
	_ domain.TemplateProvider = (*TemplateRepository)(nil)
)
