package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo will return the Info of the type of a given value, generating
// and caching as required. Pointers are dereferenced. The same *Info is
// returned for every value of one type.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, fmt.Errorf("cannot reflect nil value")
	}
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return TypeInfo(t)
}

// TypeInfo returns the Info of a struct type, generating and caching as
// required.
func TypeInfo(t reflect.Type) (*Info, error) {
	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	// Another goroutine may have won the race, keep a single Info per type so
	// that referents compare equal.
	if cached, ok := cache[t]; ok {
		return cached, nil
	}
	cache[t] = info
	return info, nil
}

var tablerInterface = reflect.TypeOf((*Tabler)(nil)).Elem()

// generate produces and returns reflection information for the input
// reflect.Type that is specifically required for rendering and scanning.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}
	if typ.Name() == "" {
		return &Info{}, fmt.Errorf("cannot use anonymous struct")
	}

	info := Info{
		Type:        typ,
		nameToField: make(map[string]int),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		f := Field{
			Name:  field.Name,
			Index: i,
			Type:  field.Type,
		}
		if tag := field.Tag.Get("db"); tag != "" {
			name, omitEmpty, err := parseTag(tag)
			if err != nil {
				return &Info{}, fmt.Errorf("cannot parse tag for field %s.%s: %s", typ.Name(), field.Name, err)
			}
			f.Tag = name
			f.OmitEmpty = omitEmpty
		}
		info.nameToField[f.Name] = len(info.Fields)
		info.Fields = append(info.Fields, f)
	}

	switch {
	case typ.Implements(tablerInterface):
		info.table = reflect.Zero(typ).Interface().(Tabler).TableName()
	case reflect.PointerTo(typ).Implements(tablerInterface):
		info.table = reflect.New(typ).Interface().(Tabler).TableName()
	}

	return &info, nil
}

// This expression should be aligned with the names accepted by the databases
// the rendered text is sent to.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, fmt.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, fmt.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name in 'db' tag")
	}

	return name, omitEmpty, nil
}
