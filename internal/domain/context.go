package domain

// Product carries catalog facts used to ground the instruction.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// BrandVoice captures the tone a user's brand wants and phrases it never uses.
type BrandVoice struct {
	Name             string   `json:"name,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	ForbiddenPhrases []string `json:"forbidden_phrases,omitempty"`
}

// TemplateRecipe is a stored template resolved from a template identifier.
type TemplateRecipe struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name,omitempty"`
	StyleDirectives    []string `json:"style_directives,omitempty"`
	ReferenceImageURLs []string `json:"reference_image_urls,omitempty"`
	AspectRatio        string   `json:"aspect_ratio,omitempty"`
}

// StageContext is the append-only bag filled by the enrichment stages of a
// single run. Setters only write absent fields and never clear one.
type StageContext struct {
	products []Product
	brand    *BrandVoice
	template *TemplateRecipe
	recipe   *Recipe
}

// SetProducts stores products when none were recorded yet.
func (c *StageContext) SetProducts(products []Product) bool {
	if len(c.products) > 0 || len(products) == 0 {
		return false
	}
	c.products = append([]Product(nil), products...)
	return true
}

// SetBrand stores the brand voice when none was recorded yet.
func (c *StageContext) SetBrand(brand *BrandVoice) bool {
	if c.brand != nil || brand == nil {
		return false
	}
	copied := *brand
	copied.ForbiddenPhrases = append([]string(nil), brand.ForbiddenPhrases...)
	c.brand = &copied
	return true
}

// SetTemplate stores the resolved template when none was recorded yet.
func (c *StageContext) SetTemplate(tpl *TemplateRecipe) bool {
	if c.template != nil || tpl == nil {
		return false
	}
	copied := *tpl
	copied.StyleDirectives = append([]string(nil), tpl.StyleDirectives...)
	copied.ReferenceImageURLs = append([]string(nil), tpl.ReferenceImageURLs...)
	c.template = &copied
	return true
}

// SetRecipe stores the inline recipe when none was recorded yet.
func (c *StageContext) SetRecipe(recipe *Recipe) bool {
	if c.recipe != nil || recipe.Empty() {
		return false
	}
	copied := *recipe
	copied.StyleDirectives = append([]string(nil), recipe.StyleDirectives...)
	copied.ReferenceImageURLs = append([]string(nil), recipe.ReferenceImageURLs...)
	c.recipe = &copied
	return true
}

func (c StageContext) Products() []Product       { return c.products }
func (c StageContext) Brand() *BrandVoice        { return c.brand }
func (c StageContext) Template() *TemplateRecipe { return c.template }
func (c StageContext) Recipe() *Recipe           { return c.recipe }

func (c StageContext) HasProducts() bool { return len(c.products) > 0 }
func (c StageContext) HasBrand() bool    { return c.brand != nil }
func (c StageContext) HasTemplate() bool { return c.template != nil }
func (c StageContext) HasRecipe() bool   { return c.recipe != nil }

// TemplateReferenceCount counts reference images contributed by the template and recipe.
func (c StageContext) TemplateReferenceCount() int {
	n := 0
	if c.template != nil {
		n += len(c.template.ReferenceImageURLs)
	}
	if c.recipe != nil {
		n += len(c.recipe.ReferenceImageURLs)
	}
	return n
}

// AssembledInstruction is the finalized instruction handed to the gate and the backend.
type AssembledInstruction struct {
	Text            string       `json:"text"`
	Brief           string       `json:"brief"`
	Directives      []string     `json:"directives,omitempty"`
	ReferenceImages []string     `json:"reference_images,omitempty"`
	InputImages     []InputImage `json:"-"`
	Mode            Mode         `json:"mode"`
	AspectRatio     string       `json:"aspect_ratio"`
	NegativePrompt  string       `json:"negative_prompt,omitempty"`
	Seed            string       `json:"seed"`
}

// ContextSnapshot is the serializable view of a StageContext.
type ContextSnapshot struct {
	Products []Product       `json:"products,omitempty"`
	Brand    *BrandVoice     `json:"brand,omitempty"`
	Template *TemplateRecipe `json:"template,omitempty"`
	Recipe   *Recipe         `json:"recipe,omitempty"`
}

// Snapshot returns a serializable copy of the bag.
func (c StageContext) Snapshot() ContextSnapshot {
	return ContextSnapshot{Products: c.products, Brand: c.brand, Template: c.template, Recipe: c.recipe}
}

// NewStageContext builds a bag from a snapshot using the regular setters.
func NewStageContext(s ContextSnapshot) StageContext {
	var c StageContext
	c.SetProducts(s.Products)
	c.SetBrand(s.Brand)
	c.SetTemplate(s.Template)
	c.SetRecipe(s.Recipe)
	return c
}
