package whitelist

import (
	"errors"
	"strings"
)

type Category string

const (
	Friend Category = "friend"
	Group  Category = "group"
	Global Category = "global"
)

var ErrUnknownCategory = errors.New("unknown whitelist category")

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{Friend, Group, Global}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Friend, Group, Global:
		return c, nil
	default:
		return "", ErrUnknownCategory
	}
}

func (c Category) String() string { return string(c) }
