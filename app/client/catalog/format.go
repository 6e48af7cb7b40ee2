package catalog

import (
	"fmt"
	"strings"
)

// FormatProducts renders products one per line for the model payload.
func FormatProducts(products []Product) string {
	if len(products) == 0 {
		return "No matching products in stock"
	}

	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "- %s | %s | %s | $%.2f", p.ID, p.Name, p.Brand, p.Price)
		if p.Description != "" {
			fmt.Fprintf(&b, " | %s", p.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p CustomerProfile) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Name: %s", p.Name)
	if len(p.PreferredCategories) > 0 {
		fmt.Fprintf(&b, "\nPreferred categories: %s", strings.Join(p.PreferredCategories, ", "))
	}
	if len(p.PreferredBrands) > 0 {
		fmt.Fprintf(&b, "\nPreferred brands: %s", strings.Join(p.PreferredBrands, ", "))
	}
	if p.BudgetMax > 0 {
		fmt.Fprintf(&b, "\nBudget: $%.0f - $%.0f", p.BudgetMin, p.BudgetMax)
	}

	return b.String()
}
