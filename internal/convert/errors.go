package convert

import "fmt"

// MissingPropertyValueError reports a property line that has a name but no value.
type MissingPropertyValueError struct {
	Name string
}

func (e *MissingPropertyValueError) Error() string {
	return fmt.Sprintf("property %s has no value", e.Name)
}

// MissingRequiredPropertyError reports an event lacking UID or DTSTAMP.
type MissingRequiredPropertyError struct {
	Name string
}

func (e *MissingRequiredPropertyError) Error() string {
	return fmt.Sprintf("event is missing required property %s", e.Name)
}
