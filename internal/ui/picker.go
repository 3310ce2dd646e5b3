package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/abelbrown/wikiscroll/internal/catalog"
)

// pickerItem is one row in the category or subcategory list.
type pickerItem struct {
	name string
	desc string
}

func (p pickerItem) Title() string       { return p.name }
func (p pickerItem) Description() string { return p.desc }
func (p pickerItem) FilterValue() string { return p.name }

// newCategoryList lists every catalog category.
func newCategoryList(cat *catalog.Catalog, width, height int) list.Model {
	items := make([]list.Item, 0, len(cat.Categories))
	for _, c := range cat.Categories {
		desc := fmt.Sprintf("%d subcategories", len(c.Subcategories))
		if c.Feed {
			desc = "featured feeds"
		}
		items = append(items, pickerItem{name: c.Name, desc: desc})
	}
	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = "Choose a category"
	l.SetShowStatusBar(false)
	return l
}

// newSubcategoryList lists the subcategories of category, General first.
func newSubcategoryList(cat *catalog.Catalog, category string, width, height int) list.Model {
	subs := cat.Subcategories(category)
	items := make([]list.Item, 0, len(subs)+1)
	if !cat.IsFeed(category) && (len(subs) == 0 || subs[0] != catalog.General) {
		items = append(items, pickerItem{name: catalog.General, desc: "everything in " + category})
	}
	for _, s := range subs {
		items = append(items, pickerItem{name: s, desc: category + " › " + s})
	}
	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = category
	l.SetShowStatusBar(false)
	return l
}
