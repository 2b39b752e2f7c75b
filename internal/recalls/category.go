package recalls

import (
	"fmt"
	"strconv"
)

// Category is one of the four recall groups published by the API.
type Category int

const (
	Food Category = iota + 1
	Vehicles
	HealthProducts
	ConsumerProducts
)

// All lists every category in upload order.
var All = []Category{Food, Vehicles, HealthProducts, ConsumerProducts}

var categoryInfo = map[Category]struct{ key, name string }{
	Food:             {"FOOD", "food"},
	Vehicles:         {"VEHICLE", "vehicles"},
	HealthProducts:   {"HEALTH", "health products"},
	ConsumerProducts: {"CPS", "consumer products"},
}

// Valid reports whether c is one of 1 to 4.
func (c Category) Valid() bool {
	_, ok := categoryInfo[c]
	return ok
}

// Key is the field of the listing response holding this category.
func (c Category) Key() string { return categoryInfo[c].key }

func (c Category) String() string {
	if !c.Valid() {
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryInfo[c].name
}

// ParseCategory accepts the index form used on the command line.
func ParseCategory(s string) (Category, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !Category(n).Valid() {
		return 0, fmt.Errorf("invalid category %q: want 1 (food), 2 (vehicles), 3 (health products) or 4 (consumer products)", s)
	}
	return Category(n), nil
}
