package ui

import (
	"github.com/fatih/color"
)

var (
	oldValue = color.New(color.FgRed, color.CrossedOut)
	newValue = color.New(color.FgGreen)
	property = color.New(color.Bold)
)

// RenderChange renders one journal detail as "label: old → new". A blank
// old value renders as "set", a blank new value as "deleted".
func RenderChange(label, old, new string) string {
	name := property.Sprint(label)
	switch {
	case old == "" && new == "":
		return name
	case old == "":
		return name + " set to " + newValue.Sprint(new)
	case new == "":
		return name + " deleted (" + oldValue.Sprint(old) + ")"
	default:
		return name + ": " + oldValue.Sprint(old) + " → " + newValue.Sprint(new)
	}
}
