package domain

import "strings"

// Catalog is the fixed list of services the studio offers.
type Catalog []string

var DefaultCatalog = Catalog{
	"Tradicional",
	"Semipermanente",
	"PressOn",
	"Polygel",
	"Acrílico",
	"Pies",
}

func (c Catalog) Offers(service string) bool {
	service = strings.TrimSpace(service)
	if service == "" {
		return false
	}
	for _, s := range c {
		if s == service {
			return true
		}
	}
	return false
}
