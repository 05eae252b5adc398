package domain

// ProductRef is the catalog's view of a product. Nothing here is stored locally.
type ProductRef struct {
	ID          int64
	Name        string
	Price       float64
	Description string
}
