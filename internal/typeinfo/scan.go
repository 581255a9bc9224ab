package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlmatch/internal/expr"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// ScanProxy is a shim for scanning query results
// into types for which we have information.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
}

// OnSuccess copies the scanned value into the original target. A scanned
// NULL zeroes it.
func (sp ScanProxy) OnSuccess() {
	var val reflect.Value
	if !sp.scan.IsNil() {
		val = sp.scan.Elem()
	} else {
		val = reflect.Zero(sp.original.Type())
	}
	sp.original.Set(val)
}

// locateScanTarget returns a pointer for the target of rows.Scan, and a
// ScanProxy reference in the event that we need to coerce that pointer into
// the target.
//
// rows.Scan will return an error if it tries to scan NULL into a type that
// cannot be set to nil, so for types that are not a pointer and do not
// implement sql.Scanner, a pointer to them is generated and passed to
// Rows.Scan. If Scan has set this pointer to nil the value is zeroed by
// ScanProxy.OnSuccess.
func locateScanTarget(val reflect.Value) (any, *ScanProxy) {
	pt := reflect.PointerTo(val.Type())
	if val.Type().Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}
	}
	return val.Addr().Interface(), nil
}

// StructTargets returns the rows.Scan targets that hydrate the struct s from
// a result with the given columns. Columns are matched to fields through
// naming, exactly first and then ignoring case.
func StructTargets(s reflect.Value, naming expr.Naming, columns []string) ([]any, []*ScanProxy, error) {
	s = reflect.Indirect(s)
	info, err := TypeInfo(s.Type())
	if err != nil {
		return nil, nil, err
	}
	fields, err := ColumnFields(naming, info)
	if err != nil {
		return nil, nil, err
	}
	var targets []any
	var proxies []*ScanProxy
	for _, col := range columns {
		f, ok := fields[col]
		if !ok {
			f, ok = foldLookup(fields, col)
		}
		if !ok {
			return nil, nil, fmt.Errorf("column %q not found in type %q", col, info.Name())
		}
		val := s.Field(f.Index)
		if !val.CanSet() {
			return nil, nil, fmt.Errorf("internal error: cannot set field %s of struct %s", f.Name, info.Name())
		}
		target, proxy := locateScanTarget(val)
		targets = append(targets, target)
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	return targets, proxies, nil
}

func foldLookup(fields map[string]Field, col string) (Field, bool) {
	for name, f := range fields {
		if strings.EqualFold(name, col) {
			return f, true
		}
	}
	return Field{}, false
}

// OutputTargets returns the rows.Scan targets for the pointers in outputs.
// Each output must be a non-nil pointer.
func OutputTargets(outputs []any) ([]any, []*ScanProxy, error) {
	var targets []any
	var proxies []*ScanProxy
	for i, out := range outputs {
		v := reflect.ValueOf(out)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return nil, nil, fmt.Errorf("need non-nil pointer for output %d, got %T", i, out)
		}
		target, proxy := locateScanTarget(v.Elem())
		targets = append(targets, target)
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	return targets, proxies, nil
}
